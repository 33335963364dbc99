package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/export"
	"github.com/noah-isme/campus-pass-api/pkg/storage"
)

type stubExportPassStore struct {
	passes []models.PassRequest
	filter models.PassFilter
	err    error
}

func (s *stubExportPassStore) List(_ context.Context, filter models.PassFilter) ([]models.PassRequest, int, error) {
	s.filter = filter
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.passes, len(s.passes), nil
}

type stubRenderer struct {
	dataset export.Dataset
	title   string
	payload []byte
}

func (r *stubRenderer) Render(data export.Dataset) ([]byte, error) {
	r.dataset = data
	return r.payload, nil
}

func (r *stubRenderer) RenderPDF(data export.Dataset, title string) ([]byte, error) {
	r.dataset = data
	r.title = title
	return r.payload, nil
}

type pdfRendererFunc struct{ inner *stubRenderer }

func (p pdfRendererFunc) Render(data export.Dataset, title string) ([]byte, error) {
	return p.inner.RenderPDF(data, title)
}

type exportFixture struct {
	svc     *ExportService
	passes  *stubExportPassStore
	csv     *stubRenderer
	pdf     *stubRenderer
	baseDir string
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	baseDir := t.TempDir()
	files, err := storage.NewLocalStorage(baseDir)
	require.NoError(t, err)

	passes := &stubExportPassStore{}
	csv := &stubRenderer{payload: []byte("csv-bytes")}
	pdf := &stubRenderer{payload: []byte("pdf-bytes")}
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	svc := NewExportService(passes, files, signer, ExportConfig{ResultTTL: time.Hour}, nil, csv, pdfRendererFunc{inner: pdf})
	return &exportFixture{svc: svc, passes: passes, csv: csv, pdf: pdf, baseDir: baseDir}
}

func exportPass(late bool) models.PassRequest {
	out := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	back := out.Add(5 * time.Hour)
	return models.PassRequest{
		ID:         "p1",
		StudentID:  testStudentID,
		Kind:       models.PassKindOuting,
		Status:     models.PassStatusCompleted,
		DepartAt:   out,
		ReturnAt:   out.Add(4 * time.Hour),
		OutAt:      &out,
		ReturnedAt: &back,
		LateReturn: late,
	}
}

func TestGeneratePassHistoryUnsupportedFormat(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{}, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestGeneratePassHistoryCSV(t *testing.T) {
	f := newExportFixture(t)
	f.passes.passes = []models.PassRequest{exportPass(true)}

	res, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{StudentID: testStudentID}, ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, ExportFormatCSV, res.Format)
	assert.NotEmpty(t, res.Token)
	assert.Contains(t, res.URL, "/api/v1/exports/")
	assert.True(t, res.ExpiresAt.After(time.Now()))

	saved, err := os.ReadFile(filepath.Join(f.baseDir, res.RelativePath))
	require.NoError(t, err)
	assert.Equal(t, []byte("csv-bytes"), saved)

	require.Len(t, f.csv.dataset.Rows, 1)
	assert.Equal(t, "p1", f.csv.dataset.Rows[0]["Pass ID"])
	assert.Equal(t, "true", f.csv.dataset.Rows[0]["Late"])
}

func TestGeneratePassHistoryPDFUsesTitle(t *testing.T) {
	f := newExportFixture(t)
	f.passes.passes = []models.PassRequest{exportPass(false)}

	res, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{}, ExportFormatPDF)
	require.NoError(t, err)

	assert.Equal(t, ExportFormatPDF, res.Format)
	assert.Equal(t, "Pass History", f.pdf.title)
}

func TestGeneratePassHistoryNormalizesPaging(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{Page: 7}, ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 1, f.passes.filter.Page)
	assert.Equal(t, 200, f.passes.filter.PageSize)
}

func TestOpenByTokenRoundTrip(t *testing.T) {
	f := newExportFixture(t)
	f.passes.passes = []models.PassRequest{exportPass(false)}

	res, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{}, ExportFormatCSV)
	require.NoError(t, err)

	file, err := f.svc.OpenByToken(res.Token)
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, []byte("csv-bytes"), data)
}

func TestOpenByTokenForged(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.svc.OpenByToken("job.123.cGF0aA.deadbeef")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestCleanupRemovesExpiredExports(t *testing.T) {
	f := newExportFixture(t)
	f.passes.passes = []models.PassRequest{exportPass(false)}

	res, err := f.svc.GeneratePassHistory(context.Background(), models.PassFilter{}, ExportFormatCSV)
	require.NoError(t, err)

	path := filepath.Join(f.baseDir, res.RelativePath)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	f.svc.Cleanup()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
