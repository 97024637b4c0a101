package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogEntry records one rejected upload.
type LogEntry struct {
	Timestamp      string      `json:"timestamp"`
	Filename       string      `json:"filename"`
	QuarantinePath string      `json:"quarantine_path"`
	Violations     []Violation `json:"violations"`
	RemoteAddr     string      `json:"remote_addr"`
}

// SecurityLog quarantines flagged uploads and keeps an append-only JSON log
// of every rejection. Entries are never loaded by the runtime.
type SecurityLog struct {
	mu   sync.Mutex
	dir  string
	path string
}

// NewSecurityLog creates the quarantine directory if needed.
func NewSecurityLog(dir string) (*SecurityLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine dir: %w", err)
	}
	return &SecurityLog{
		dir:  dir,
		path: filepath.Join(dir, "security_log.json"),
	}, nil
}

// Record quarantines the flagged source and appends a log entry carrying the
// submitter's network identity. It returns the quarantine path.
func (l *SecurityLog) Record(filename string, content []byte, violations []Violation, remoteAddr string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	name := strings.ReplaceAll(ts, ":", "-") + "_" + filepath.Base(filename)
	quarantinePath := filepath.Join(l.dir, name)

	if err := os.WriteFile(quarantinePath, content, 0o644); err != nil {
		return "", fmt.Errorf("quarantining %s: %w", filename, err)
	}

	entries, err := l.readLocked()
	if err != nil {
		return "", err
	}
	entries = append(entries, LogEntry{
		Timestamp:      ts,
		Filename:       filepath.Base(filename),
		QuarantinePath: quarantinePath,
		Violations:     violations,
		RemoteAddr:     remoteAddr,
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing security log: %w", err)
	}
	return quarantinePath, nil
}

// Recent returns log entries, most recent first, capped at limit (0 = all).
func (l *SecurityLog) Recent(limit int) ([]LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *SecurityLog) readLocked() ([]LogEntry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading security log: %w", err)
	}
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing security log: %w", err)
	}
	return entries, nil
}
