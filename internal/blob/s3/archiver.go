package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// LedgerSource provides the entries and summary the archiver snapshots. The
// in-memory ledger satisfies it.
type LedgerSource interface {
	Entries() []domain.LedgerEntry
	Summary() domain.LedgerSummary
}

// Archiver periodically uploads the session ledger and the loop definition
// file to object storage. Uploads are snapshots; failed cycles are logged
// and retried on the next interval.
type Archiver struct {
	writer   *Writer
	ledger   LedgerSource
	loopFile string
	every    time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver that snapshots ledger to S3 every interval.
// loopFile may be empty, in which case only the ledger is archived.
func NewArchiver(writer *Writer, ledger LedgerSource, loopFile string, every time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		ledger:   ledger,
		loopFile: loopFile,
		every:    every,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run uploads on every interval until the context is cancelled, then takes
// one final snapshot so the session's tail is not lost.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.every))
	defer a.logger.Info("archiver stopped")

	ticker := time.NewTicker(a.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.archiveOnce(finalCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.archiveOnce(ctx)
		}
	}
}

func (a *Archiver) archiveOnce(ctx context.Context) {
	if n, err := a.ArchiveLedger(ctx); err != nil {
		a.logger.Warn("ledger archive failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.Info("ledger archived", slog.Int("entries", n))
	}

	if a.loopFile == "" {
		return
	}
	if err := a.ArchiveLoopFile(ctx); err != nil {
		a.logger.Warn("loop file archive failed", slog.String("error", err.Error()))
	}
}

// ArchiveLedger serializes the current ledger entries to JSONL, appends a
// summary record, and uploads the snapshot to
// archive/ledger/YYYY-MM-DD.jsonl. It returns the number of entries written.
func (a *Archiver) ArchiveLedger(ctx context.Context) (int, error) {
	entries := a.ledger.Entries()
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal ledger: %w", err)
	}

	now := time.Now().UTC()
	path := fmt.Sprintf("archive/ledger/%s.jsonl", now.Format("2006-01-02"))
	if err := a.upload(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload ledger: %w", err)
	}

	summary, err := json.Marshal(a.ledger.Summary())
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal summary: %w", err)
	}
	summaryPath := fmt.Sprintf("archive/summary/%s.json", now.Format("2006-01-02"))
	if err := a.upload(ctx, summaryPath, summary, "application/json"); err != nil {
		return 0, fmt.Errorf("s3blob: upload summary: %w", err)
	}

	return len(entries), nil
}

// ArchiveLoopFile uploads the loop definition file under archive/loops/ so
// a recorded session can always be replayed against the loop set it ran.
func (a *Archiver) ArchiveLoopFile(ctx context.Context) error {
	data, err := os.ReadFile(a.loopFile)
	if err != nil {
		return fmt.Errorf("s3blob: read loop file %s: %w", a.loopFile, err)
	}
	path := fmt.Sprintf("archive/loops/%s.json", time.Now().UTC().Format("2006-01-02"))
	if err := a.upload(ctx, path, data, "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload loop file: %w", err)
	}
	return nil
}

// upload chooses single-shot or multipart based on payload size.
func (a *Archiver) upload(ctx context.Context, path string, data []byte, contentType string) error {
	if len(data) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(data), 0)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(data), contentType)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON, one
// compact line per element.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
