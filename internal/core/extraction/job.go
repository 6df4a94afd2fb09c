package extraction

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status はジョブの状態
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal は終了状態かどうかを返します
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Step は処理段階
type Step string

const (
	StepQueued              Step = "queued"
	StepConverting          Step = "converting"
	StepExtractingText      Step = "extracting_text"
	StepExtractingStructure Step = "extracting_structure"
	StepMerging             Step = "merging"
	StepFinalizing          Step = "finalizing"
	StepCompleted           Step = "completed"
	StepFailed              Step = "failed"
	StepStopped             Step = "stopped"
)

var stepLabels = map[Step]string{
	StepQueued:              "Queued",
	StepConverting:          "Converting document",
	StepExtractingText:      "Extracting text",
	StepExtractingStructure: "Extracting structured data",
	StepMerging:             "Merging results",
	StepFinalizing:          "Saving record",
	StepCompleted:           "Completed",
	StepFailed:              "Failed",
	StepStopped:             "Stopped",
}

// Label は表示用の段階名を返します
func (s Step) Label() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return string(s)
}

// 各段階の進捗率
const (
	ProgressQueued         = 0
	ProgressConverting     = 10
	ProgressExtractingText = 25
	ProgressStructureStart = 30
	ProgressStructureEnd   = 85
	ProgressMerging        = 88
	ProgressFinalizing     = 95
	ProgressCompleted      = 100
)

// structureProgress は done/total チャンク完了時の進捗率を返します
func structureProgress(done, total int) int {
	if total <= 0 {
		return ProgressStructureStart
	}
	return ProgressStructureStart + (ProgressStructureEnd-ProgressStructureStart)*done/total
}

// Job は1文書の抽出ジョブ
type Job struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	FileName   string
	Text       string
	Models     []string
	Step       Step
	Progress   int
	Status     Status
	Error      string
	CanRetry   bool
	ModelsUsed []string
	Run        int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Clone はジョブの複製を返します
func (j *Job) Clone() *Job {
	c := *j
	c.Models = slices.Clone(j.Models)
	c.ModelsUsed = slices.Clone(j.ModelsUsed)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Duration は処理時間を返します。実行中は now までの時間。
func (j *Job) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// LastModel は最後に応答したモデルを返します
func (j *Job) LastModel() string {
	if len(j.ModelsUsed) == 0 {
		return ""
	}
	return j.ModelsUsed[len(j.ModelsUsed)-1]
}

// Progress は外部に公開する進捗
type Progress struct {
	JobID                uuid.UUID `json:"job_id"`
	DocumentID           uuid.UUID `json:"document_id"`
	Status               Status    `json:"status"`
	CurrentStep          string    `json:"current_step"`
	Step                 Step      `json:"step"`
	ProgressPercent      int       `json:"progress_percent"`
	ErrorMessage         *string   `json:"error_message"`
	CanRetry             bool      `json:"can_retry"`
	AIModel              string    `json:"ai_model,omitempty"`
	ProcessingDurationMS int64     `json:"processing_duration_ms"`
	Run                  int       `json:"run"`
}

// ProgressAt は now 時点の進捗を返します
func (j *Job) ProgressAt(now time.Time) Progress {
	p := Progress{
		JobID:                j.ID,
		DocumentID:           j.DocumentID,
		Status:               j.Status,
		CurrentStep:          j.Step.Label(),
		Step:                 j.Step,
		ProgressPercent:      j.Progress,
		CanRetry:             j.CanRetry,
		AIModel:              j.LastModel(),
		ProcessingDurationMS: j.Duration(now).Milliseconds(),
		Run:                  j.Run,
	}
	if j.Error != "" {
		msg := j.Error
		p.ErrorMessage = &msg
	}
	return p
}

// ControlResult は停止・再実行要求の結果
type ControlResult string

const (
	ControlAccepted         ControlResult = "accepted"
	ControlAlreadyStopped   ControlResult = "already_stopped"
	ControlAlreadyCompleted ControlResult = "already_completed"
	ControlAlreadyRunning   ControlResult = "already_running"
	ControlNotRunning       ControlResult = "not_running"
	ControlNotRetryable     ControlResult = "not_retryable"
)

// Accepted は要求が受理されたかを返します
func (r ControlResult) Accepted() bool {
	return r == ControlAccepted
}
