package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"devflow/internal/fileutil"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	recordExt = ".json"
	logExt    = ".log"
)

// Record is the on-disk bookkeeping for one background task.
type Record struct {
	TaskID    string     `json:"task_id"`
	Command   string     `json:"command"`
	Module    string     `json:"module"`
	Function  string     `json:"function"`
	Operation string     `json:"operation"`
	PID       int        `json:"pid"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	LogFile   string     `json:"log_file"`
	Status    Status     `json:"status"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration returns the task's run time so far, or its total once finished.
func (r Record) Duration(now time.Time) time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	end := now
	if r.EndTime != nil {
		end = *r.EndTime
	}
	if end.Before(r.StartTime) {
		return 0
	}
	return end.Sub(r.StartTime)
}

// NewTaskID returns "<yyyymmdd-hhmmss>-<8 hex>".
func NewTaskID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102-150405") + "-" + suffix
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id && !strings.ContainsAny(id, `/\`)
}

// RecordPath returns where the record for id lives inside dir.
func RecordPath(dir, id string) string { return filepath.Join(dir, id+recordExt) }

// LogPath returns where the log for id lives inside dir.
func LogPath(dir, id string) string { return filepath.Join(dir, id+logExt) }

func loadRecord(dir, id string) (Record, error) {
	if !validID(id) {
		return Record{}, notFound(id)
	}
	data, err := os.ReadFile(RecordPath(dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, notFound(id)
		}
		return Record{}, fmt.Errorf("read task record %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse task record %s: %w", id, err)
	}
	if rec.TaskID == "" {
		rec.TaskID = id
	}
	return rec, nil
}

func saveRecord(dir string, rec Record) error {
	if err := fileutil.WriteJSONAtomic(RecordPath(dir, rec.TaskID), rec); err != nil {
		return fmt.Errorf("write task record %s: %w", rec.TaskID, err)
	}
	return nil
}

func removeTaskFiles(dir, id string) error {
	var errs []error
	for _, path := range []string{RecordPath(dir, id), LogPath(dir, id)} {
		if err := fileutil.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// listRecords returns every readable record in dir, newest first. Unreadable
// records are skipped and reported through skipped.
func listRecords(dir string, skipped func(name string, err error)) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks directory: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		rec, err := loadRecord(dir, strings.TrimSuffix(name, recordExt))
		if err != nil {
			if skipped != nil {
				skipped(name, err)
			}
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].StartTime.Equal(records[j].StartTime) {
			return records[i].TaskID > records[j].TaskID
		}
		return records[i].StartTime.After(records[j].StartTime)
	})
	return records, nil
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
