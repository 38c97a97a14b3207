package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantfold/mmsim/internal/domain"
)

// BlobWriter is the subset of upload behavior the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Archiver writes finalized run artifacts under a stable key layout:
//
//	reports/<run_id>.json
//	halts/<run_id>.json
type Archiver struct {
	writer BlobWriter
}

// NewArchiver creates an Archiver on top of a blob writer.
func NewArchiver(writer BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveReport uploads the finalized report JSON.
func (a *Archiver) ArchiveReport(ctx context.Context, report domain.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report: %w", err)
	}
	key := fmt.Sprintf("reports/%s.json", report.RunID)
	return a.writer.Put(ctx, key, data, "application/json")
}

// HaltBundle is the debug artifact written when a run halts: the
// triggering invariant plus the ledger state needed to diagnose it.
type HaltBundle struct {
	RunID      string                   `json:"run_id"`
	HaltReason string                   `json:"halt_reason"`
	HaltTick   *int                     `json:"halt_tick"`
	Positions  []domain.Position        `json:"positions"`
	Executions []domain.ExecutionRecord `json:"executions"`
	CreatedAt  time.Time                `json:"created_at"`
}

// ArchiveHaltBundle uploads the halt debug bundle.
func (a *Archiver) ArchiveHaltBundle(ctx context.Context, bundle HaltBundle) error {
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal halt bundle: %w", err)
	}
	key := fmt.Sprintf("halts/%s.json", bundle.RunID)
	return a.writer.Put(ctx, key, data, "application/json")
}
