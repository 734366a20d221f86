package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/gridpilot/internal/filelock"
)

// EvidenceStore persists screenshots taken during a run and returns a
// reference recorded in the evidence log.
type EvidenceStore interface {
	SaveScreenshot(ctx context.Context, stepID string, attempt int, label string, data []byte) (string, error)
}

// DirEvidence writes screenshots under one directory per run.
type DirEvidence struct {
	dir string
}

// NewDirEvidence creates <root>/<runID>.
func NewDirEvidence(root, runID string) (*DirEvidence, error) {
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &DirEvidence{dir: dir}, nil
}

// Dir returns the run's evidence directory.
func (d *DirEvidence) Dir() string {
	return d.dir
}

// SaveScreenshot writes data atomically as <step>-a<attempt>-<label>.png.
func (d *DirEvidence) SaveScreenshot(ctx context.Context, stepID string, attempt int, label string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(d.dir, evidenceName(stepID, attempt, label))
	if err := filelock.AtomicWrite(path, data); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}

// DiscardEvidence keeps nothing on disk; refs are synthetic.
type DiscardEvidence struct{}

// SaveScreenshot returns a mem:// ref without storing data.
func (DiscardEvidence) SaveScreenshot(ctx context.Context, stepID string, attempt int, label string, data []byte) (string, error) {
	return "mem://" + evidenceName(stepID, attempt, label), nil
}

func evidenceName(stepID string, attempt int, label string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, stepID)
	return fmt.Sprintf("%s-a%d-%s.png", safe, attempt, label)
}
