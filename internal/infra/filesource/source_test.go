package filesource_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/infra/filesource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

func TestSource_GetText(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	src := filesource.NewSource()

	t.Run("テキストファイル", func(t *testing.T) {
		path := filepath.Join(dir, "jane.txt")
		writeFile(t, path, []byte("\ufeffJANE DOE\nSoftware Engineer\n"))
		id, err := src.Register(path)
		require.NoError(t, err)

		text, err := src.GetText(ctx, id)

		require.NoError(t, err)
		assert.Equal(t, "JANE DOE\nSoftware Engineer\n", text)
	})

	t.Run("文書IDはパスから決まる", func(t *testing.T) {
		a, err := filesource.DocumentID(filepath.Join(dir, "jane.txt"))
		require.NoError(t, err)
		b, err := src.Register(filepath.Join(dir, ".", "jane.txt"))
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("バイナリファイル", func(t *testing.T) {
		path := filepath.Join(dir, "scan.txt")
		writeFile(t, path, []byte("%PDF-1.7\x00\x01\x02binary"))
		id, err := src.Register(path)
		require.NoError(t, err)

		_, err = src.GetText(ctx, id)

		assert.ErrorIs(t, err, filesource.ErrBinaryContent)
	})

	t.Run("不正なUTF-8", func(t *testing.T) {
		path := filepath.Join(dir, "latin1.txt")
		writeFile(t, path, []byte("Jos\xe9 Garc\xeda"))
		id, err := src.Register(path)
		require.NoError(t, err)

		_, err = src.GetText(ctx, id)

		assert.ErrorIs(t, err, filesource.ErrBinaryContent)
	})

	t.Run("未登録の文書", func(t *testing.T) {
		_, err := src.GetText(ctx, uuid.New())

		assert.ErrorIs(t, err, filesource.ErrUnknownDocument)
	})
}

func TestCollect(t *testing.T) {
	// Setup
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), []byte("b"))
	writeFile(t, filepath.Join(dir, "a.md"), []byte("a"))
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), []byte("c"))
	writeFile(t, filepath.Join(dir, "original.pdf"), []byte("%PDF"))
	writeFile(t, filepath.Join(dir, "out", "a.json"), []byte("{}"))
	writeFile(t, filepath.Join(dir, ".hidden", "d.txt"), []byte("d"))
	writeFile(t, filepath.Join(dir, "drafts", "e.txt"), []byte("e"))
	writeFile(t, filepath.Join(dir, filesource.IgnoreFileName), []byte("# 下書き\ndrafts/\n"))

	// Execute
	files, err := filesource.Collect(dir)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "nested", "c.txt"),
	}, files)
}

func TestJSONSink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filesource.NewSource()
	path := filepath.Join(dir, "jane.txt")
	writeFile(t, path, []byte("JANE DOE"))
	docID, err := src.Register(path)
	require.NoError(t, err)

	rec := &record.Record{}
	rec.PersonalInformation.FirstName = "Jane"
	meta := extraction.Metadata{JobID: uuid.New(), Run: 1, ChunkCount: 1}

	t.Run("ファイルへの出力は上書き", func(t *testing.T) {
		// Setup
		outDir := filepath.Join(dir, "out")
		sink := filesource.NewFileSink(src, outDir)
		rerun := &record.Record{}
		rerun.PersonalInformation.FirstName = "Janet"

		// Execute
		require.NoError(t, sink.SaveRecord(ctx, docID, rec, meta))
		require.NoError(t, sink.SaveRecord(ctx, docID, rerun, meta))

		// Assert
		assert.Equal(t, filepath.Join(outDir, "jane.json"), sink.OutputPath(docID))
		data, err := os.ReadFile(sink.OutputPath(docID))
		require.NoError(t, err)
		var out filesource.Output
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, docID, out.DocumentID)
		assert.Equal(t, "jane.txt", out.FileName)
		assert.Equal(t, record.Text("Janet"), out.Record.PersonalInformation.FirstName)
		assert.Equal(t, meta.JobID, out.Metadata.JobID)
	})

	t.Run("Writer への出力", func(t *testing.T) {
		var buf bytes.Buffer
		sink := filesource.NewWriterSink(src, &buf)

		require.NoError(t, sink.SaveRecord(ctx, docID, rec, meta))

		assert.Contains(t, buf.String(), `"first_name": "Jane"`)
		assert.Contains(t, buf.String(), `"file_name": "jane.txt"`)
	})
}
