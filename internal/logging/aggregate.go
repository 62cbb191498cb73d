package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Entry is one parsed log line.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	Container string         `json:"container,omitempty"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Step      string         `json:"step,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything; set fields are ANDed.
type Filter struct {
	// Level is the minimum level to keep.
	Level     string
	Container string
	Pipeline  string
	RunID     string
	Since     time.Time
	Contains  string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// maxBackupsScanned bounds how many rotated files ReadEntries looks at.
const maxBackupsScanned = 32

// ReadEntries parses cibox.log in dir together with its rotated backups.
// Malformed lines are skipped. Entries come back in time order.
func ReadEntries(dir string) ([]Entry, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	files := backupFiles(path, maxBackupsScanned)
	slices.Reverse(files)
	files = append(files, path)

	var entries []Entry
	for _, f := range files {
		got, err := readFile(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return parseEntries(r)
}

func parseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := Entry{Attrs: make(map[string]any)}
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}

	if t, err := time.Parse(time.RFC3339Nano, take("time")); err == nil {
		entry.Time = t
	}
	entry.Level = take("level")
	entry.Message = take("msg")
	entry.RunID = take(KeyRun)
	entry.Container = take(KeyContainer)
	entry.Pipeline = take(KeyPipeline)
	entry.Step = take(KeyStep)
	for k, v := range raw {
		entry.Attrs[k] = v
	}
	return entry, nil
}

// FilterEntries returns the entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f Filter) matches(e Entry) bool {
	if f.Level != "" {
		want, ok1 := levelOrder[strings.ToUpper(f.Level)]
		got, ok2 := levelOrder[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if f.Container != "" && e.Container != f.Container {
		return false
	}
	if f.Pipeline != "" && e.Pipeline != f.Pipeline {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
		return false
	}
	return true
}

// WriteText renders entries one per line:
//
//	[2006-01-02 15:04:05.000] INFO  step finished (container=test pipeline=provision step=apt-get update) {"exit_code":0}
func WriteText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] %-5s %s", e.Time.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

		var scope []string
		for _, kv := range [][2]string{
			{"run", e.RunID}, {"container", e.Container}, {"pipeline", e.Pipeline}, {"step", e.Step},
		} {
			if kv[1] != "" {
				scope = append(scope, kv[0]+"="+kv[1])
			}
		}
		if len(scope) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(scope, " "))
		}
		if len(e.Attrs) > 0 {
			attrs, _ := json.Marshal(e.Attrs)
			sb.WriteByte(' ')
			sb.Write(attrs)
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return fmt.Errorf("failed to write log entry: %w", err)
		}
	}
	return nil
}

// WriteJSON renders entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
