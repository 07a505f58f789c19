// Package export retrieves backend-generated artifacts (PDF/Excel) for
// completed jobs and materializes them locally.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/model"
)

// Formats the backend can render.
const (
	FormatPDF   = "pdf"
	FormatExcel = "excel"
)

// ArtifactFetcher is the subset of the API client the adapter depends on.
type ArtifactFetcher interface {
	ExportArtifact(ctx context.Context, jobID, format string) (io.ReadCloser, string, error)
}

// Adapter downloads artifacts for completed jobs.
type Adapter struct {
	client ArtifactFetcher
	dir    string
}

// New creates an export adapter writing into dir.
func New(client ArtifactFetcher, dir string) *Adapter {
	return &Adapter{client: client, dir: dir}
}

// Export fetches the artifact for a completed job and saves it under the
// adapter's directory, returning the final path. A job that is absent or
// not completed is rejected with ErrNoResults before any network call.
// A failed fetch is not retried automatically.
func (a *Adapter) Export(ctx context.Context, job *model.Job, format string) (string, error) {
	if format != FormatPDF && format != FormatExcel {
		return "", &model.ValidationError{Field: "format", Reason: "must be pdf or excel"}
	}
	if !job.Completed() {
		return "", model.ErrNoResults
	}

	body, filename, err := a.client.ExportArtifact(ctx, job.ID, format)
	if err != nil {
		return "", eris.Wrap(err, "export: fetch artifact")
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}

	// Materialize via a temp file so a torn download never leaves a
	// half-written artifact at the final path.
	tmp, err := os.CreateTemp(a.dir, ".export-*")
	if err != nil {
		return "", eris.Wrap(err, "export: create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", eris.Wrap(err, "export: write artifact")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", eris.Wrap(err, "export: close temp file")
	}

	final := filepath.Join(a.dir, filepath.Base(filename))
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return "", eris.Wrap(err, "export: move artifact into place")
	}

	zap.L().Info("export: artifact saved",
		zap.String("job_id", job.ID),
		zap.String("format", format),
		zap.String("path", final),
	)
	return final, nil
}
