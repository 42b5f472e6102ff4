package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/models"
)

// FileStore keeps exactly one daily report as a JSON document. Saves go
// through a temp file and a rename, so a concurrent reader sees either
// the old document or the new one, never a partial write.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: log.With().Str("component", "report_store").Logger(),
	}
}

func (s *FileStore) Save(report *models.DailyReport) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".daily-report-*.json")
	if err != nil {
		return fmt.Errorf("creating temp report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp report file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing report file: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Str("date", report.Date).Msg("Daily report persisted")
	return nil
}

func (s *FileStore) Load() (*models.DailyReport, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}
	var report models.DailyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}
	return &report, nil
}
