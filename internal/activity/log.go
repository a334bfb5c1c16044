package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultPath is the default activity log location.
const DefaultPath = ".oracle/activity.jsonl"

// maxLineSize bounds a single JSONL line when reading the log back.
const maxLineSize = 1024 * 1024

// Log appends Records to a JSONL file. It is safe for concurrent use.
type Log struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// Ensure Log implements Recorder
var _ Recorder = (*Log)(nil)

// Open opens (or creates) the log at path in append mode.
func Open(path string) (*Log, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create activity directory: %w", err)
	}

	// 0600: the log carries generated content and author handles
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}

	return &Log{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Append writes records as JSON lines and flushes them.
func (l *Log) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("activity log %s is closed", l.path)
	}

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := l.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := l.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush activity log: %w", err)
	}
	return nil
}

// Close flushes any remaining data and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if err := l.writer.Flush(); err != nil {
		_ = l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}

	if err := l.file.Close(); err != nil {
		l.file = nil
		return fmt.Errorf("failed to close activity log: %w", err)
	}

	l.file = nil
	return nil
}

// Path returns the path to the log file.
func (l *Log) Path() string {
	return l.path
}

// RecentPosts returns the text of the newest published records, newest
// first. handle is ignored: the log only holds the persona's own posts.
func (l *Log) RecentPosts(_ context.Context, _ string, limit int) ([]string, error) {
	records, err := ReadRecords(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	posts := make([]string, 0, limit)
	for i := len(records) - 1; i >= 0 && len(posts) < limit; i-- {
		if records[i].Published() && records[i].Content != "" {
			posts = append(posts, records[i].Content)
		}
	}
	return posts, nil
}

// ReadRecords reads all records from a JSONL file.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record on line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}

	return records, nil
}

// FilterByType filters records by type.
func FilterByType(records []Record, types ...RecordType) []Record {
	if len(types) == 0 {
		return records
	}

	typeSet := make(map[RecordType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	var filtered []Record
	for _, rec := range records {
		if typeSet[rec.Type] {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// FilterByPass filters records by pass ID. An empty passID returns all
// records.
func FilterByPass(records []Record, passID string) []Record {
	if passID == "" {
		return records
	}

	var filtered []Record
	for _, rec := range records {
		if rec.PassID == passID {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}
