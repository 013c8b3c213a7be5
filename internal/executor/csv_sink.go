package executor

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// CSVSink appends ledger entries to a local CSV file, one row per trade.
// The header is written only when the file is created. It is safe for
// concurrent use.
type CSVSink struct {
	path string

	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

var _ domain.LedgerSink = (*CSVSink)(nil)

var csvHeader = []string{
	"id", "timestamp", "loop", "mode",
	"start_amount", "final_amount", "net_profit", "profit_pct",
}

// NewCSVSink opens (or creates) the CSV file at path in append mode.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("executor: open ledger csv %s: %w", path, err)
	}

	s := &CSVSink{path: path, file: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("executor: stat ledger csv %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("executor: write csv header: %w", err)
		}
		s.w.Flush()
	}
	return s, nil
}

// Name implements domain.LedgerSink.
func (s *CSVSink) Name() string { return "csv" }

// Append writes one entry as a CSV row and flushes it to disk.
func (s *CSVSink) Append(_ context.Context, entry domain.LedgerEntry) error {
	row := []string{
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Loop.ID(),
		entry.Mode.String(),
		strconv.FormatFloat(entry.StartAmount, 'f', -1, 64),
		strconv.FormatFloat(entry.FinalAmount, 'f', -1, 64),
		strconv.FormatFloat(entry.NetProfit, 'f', -1, 64),
		strconv.FormatFloat(entry.ProfitPct, 'f', -1, 64),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("executor: write csv row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("executor: flush csv: %w", err)
	}
	return nil
}

// Path returns the file path the sink writes to.
func (s *CSVSink) Path() string { return s.path }

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.file.Close()
}
