package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	exttesting "github.com/jinford/cv-extract/internal/core/extraction/testing"
	"github.com/jinford/cv-extract/internal/infra/llm"
	"github.com/jinford/cv-extract/internal/infra/postgres"
	"github.com/jinford/cv-extract/internal/interface/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDocuments struct {
	CreateFunc func(ctx context.Context, doc postgres.Document) error
}

func (m *mockDocuments) Create(ctx context.Context, doc postgres.Document) error {
	return m.CreateFunc(ctx, doc)
}

type mockRecords struct {
	GetFunc func(ctx context.Context, documentID uuid.UUID) (*postgres.StoredRecord, error)
}

func (m *mockRecords) Get(ctx context.Context, documentID uuid.UUID) (*postgres.StoredRecord, error) {
	return m.GetFunc(ctx, documentID)
}

type apiFixture struct {
	server  *httptest.Server
	service *extraction.Service
	client  *exttesting.ScriptedClient
}

func newAPIFixture(t *testing.T, opts ...httpapi.Option) *apiFixture {
	t.Helper()
	client := exttesting.NewScriptedClient()
	policy := extraction.DefaultPolicy().WithModels([]string{"openai/gpt-4o"})
	svc, err := extraction.NewService(
		exttesting.StaticText(exttesting.CVText(5)),
		client,
		&exttesting.RecordingSink{},
		extraction.WithServicePolicy(policy),
		extraction.WithServiceLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)

	opts = append([]httpapi.Option{httpapi.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	srv := httptest.NewServer(httpapi.NewHandler(svc, opts...).Router())
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, service: svc, client: client}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (f *apiFixture) wait(t *testing.T, jobID uuid.UUID) *extraction.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := f.service.Wait(ctx, jobID)
	require.NoError(t, err)
	return job
}

func TestHandler_SubmitAndProgress(t *testing.T) {
	// Setup
	f := newAPIFixture(t)
	f.client.On("openai/gpt-4o", exttesting.Reply{Content: exttesting.CompleteResponse, FinishReason: "stop"})
	docID := uuid.New()

	// Execute
	resp, body := f.do(t, http.MethodPost, "/documents/"+docID.String()+"/jobs", `{"file_name":"maria.txt"}`)

	// Assert
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := uuid.MustParse(body["job_id"].(string))
	assert.Equal(t, "/jobs/"+jobID.String(), resp.Header.Get("Location"))
	f.wait(t, jobID)

	resp, body = f.do(t, http.MethodGet, "/jobs/"+jobID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(100), body["progress_percent"])
	assert.Equal(t, "Completed", body["current_step"])
	assert.Nil(t, body["error_message"])
	assert.Equal(t, "openai/gpt-4o", body["ai_model"])

	resp, body = f.do(t, http.MethodGet, "/jobs?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["jobs"], 1)
}

func TestHandler_Control(t *testing.T) {
	// Setup
	f := newAPIFixture(t)
	f.client.On("openai/gpt-4o",
		exttesting.Reply{Block: true},
		exttesting.Reply{Content: exttesting.CompleteResponse, FinishReason: "stop"},
	)
	job, err := f.service.Submit(context.Background(), extraction.SubmitRequest{DocumentID: uuid.New()})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.client.CallCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	path := "/jobs/" + job.ID.String()

	// Execute & Assert
	resp, body := f.do(t, http.MethodPost, path+"/stop", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", body["result"])

	resp, body = f.do(t, http.MethodPost, path+"/stop", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_stopped", body["result"])

	f.wait(t, job.ID)
	resp, body = f.do(t, http.MethodPost, path+"/retry", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", body["result"])
	assert.Equal(t, extraction.StatusCompleted, f.wait(t, job.ID).Status)

	resp, body = f.do(t, http.MethodPost, path+"/retry", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_completed", body["result"])
}

func TestHandler_Errors(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "不正なジョブID", method: http.MethodGet, path: "/jobs/not-a-uuid", status: http.StatusBadRequest},
		{name: "存在しないジョブ", method: http.MethodGet, path: "/jobs/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "存在しないジョブの停止", method: http.MethodPost, path: "/jobs/" + uuid.NewString() + "/stop", status: http.StatusNotFound},
		{name: "存在しないジョブの再実行", method: http.MethodPost, path: "/jobs/" + uuid.NewString() + "/retry", status: http.StatusNotFound},
		{name: "不正な件数", method: http.MethodGet, path: "/jobs?limit=-1", status: http.StatusBadRequest},
		{name: "不正な文書ID", method: http.MethodPost, path: "/documents/x/jobs", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, "")

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandler_Documents(t *testing.T) {
	// Setup
	var created []postgres.Document
	existing := uuid.New()
	docs := &mockDocuments{
		CreateFunc: func(_ context.Context, doc postgres.Document) error {
			if doc.ID == existing {
				return postgres.ErrDocumentExists
			}
			created = append(created, doc)
			return nil
		},
	}
	records := &mockRecords{
		GetFunc: func(_ context.Context, documentID uuid.UUID) (*postgres.StoredRecord, error) {
			return nil, postgres.ErrRecordNotFound
		},
	}
	f := newAPIFixture(t, httpapi.WithDocuments(docs, records))

	t.Run("登録", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/documents", `{"file_name":"maria.txt","text":"MARIA SANTOS"}`)

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Len(t, created, 1)
		assert.Equal(t, created[0].ID.String(), body["document_id"])
		assert.Equal(t, "MARIA SANTOS", created[0].Text)
	})

	t.Run("重複", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/documents", `{"id":"`+existing.String()+`","file_name":"dup.txt"}`)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("ファイル名なし", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/documents", `{"text":"x"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("レコードなし", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/documents/"+uuid.NewString()+"/record", "")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandler_Metrics(t *testing.T) {
	// Setup
	metrics := llm.NewMetrics()
	metrics.ObserveAttempt(extraction.Attempt{Model: "openai/gpt-4o", Latency: time.Second})
	limiter := llm.NewThrottledClient(&exttesting.MockClient{}, 60, 2)
	f := newAPIFixture(t, httpapi.WithMetrics(metrics, limiter))

	// Execute
	resp, body := f.do(t, http.MethodGet, "/metrics/llm", "")

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := body["metrics"].(map[string]any)
	assert.Equal(t, float64(1), m["total_requests"])
	rl := body["rate_limiter"].(map[string]any)
	assert.Equal(t, float64(2), rl["max_concurrent"])
}
