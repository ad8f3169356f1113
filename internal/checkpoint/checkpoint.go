/*
Package checkpoint persists intermediate pipeline state: whole-file JSON
snapshots and an append-only journal used to resume an interrupted batch.
*/
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// WriteJSON overwrites path with the indented JSON encoding of v. The file
// is written next to its final location and renamed into place so readers
// never observe a partial file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Entry is one journal line.
type Entry struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Journal is an append-only JSON Lines file. Each Append is flushed to disk
// before it returns, so a crash loses at most the entry being written.
type Journal struct {
	mu   sync.Mutex
	path string
	log  logrus.FieldLogger
}

func NewJournal(path string, log logrus.FieldLogger) *Journal {
	return &Journal{path: path, log: log}
}

func (j *Journal) Path() string {
	return j.path
}

// Load returns the entries already in the journal. A missing file yields no
// entries. Lines that do not decode, such as a torn final write, are skipped.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil || e.Key == "" {
			j.log.WithFields(logrus.Fields{"journal": j.path, "line": line}).Warn("Skipping unreadable journal line")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to scan journal %s: %w", j.path, err)
	}

	return entries, nil
}

// Append writes one entry keyed by key.
func (j *Journal) Append(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry %s: %w", key, err)
	}
	line, err := json.Marshal(Entry{Key: key, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry %s: %w", key, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal %s: %w", j.path, err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to journal %s: %w", j.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync journal %s: %w", j.path, err)
	}
	return f.Close()
}

// Remove deletes the journal. Removing a journal that does not exist is not
// an error.
func (j *Journal) Remove() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove journal %s: %w", j.path, err)
	}
	return nil
}
