package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// wal is the line-oriented durable log primitive: append, read-all,
// replace-with-suffix. One record per newline-terminated line. The file is
// created lazily on first append and removed when fully consumed.
type wal struct {
	path string
}

func newWAL(path string) *wal {
	return &wal{path: path}
}

// Exists reports whether the log file is present.
func (w *wal) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// Size returns the log size in bytes, 0 when absent.
func (w *wal) Size() (int64, error) {
	info, err := os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat overflow log: %w", err)
	}
	return info.Size(), nil
}

// Append writes every line (newline-terminated) in one write call. If the
// resulting size would exceed maxBytes the whole append is rejected and
// the file is left byte-identical.
func (w *wal) Append(lines [][]byte, maxBytes int64) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	size, err := w.Size()
	if err != nil {
		return err
	}
	if size+int64(buf.Len()) > maxBytes {
		return ErrStoreFull
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create overflow dir: %w", err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open overflow log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append overflow log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync overflow log: %w", err)
	}
	return f.Close()
}

// ReadAll returns every stored line in order, without trailing newlines.
func (w *wal) ReadAll() ([][]byte, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overflow log: %w", err)
	}

	raw := bytes.Split(data, []byte{'\n'})
	lines := make([][]byte, 0, len(raw))
	for _, line := range raw {
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// ReplaceSuffix atomically rewrites the log to contain exactly the given
// lines. An empty suffix removes the file. The write-to-temp-then-rename
// ensures a crash mid-rewrite leaves either the old or the new content,
// never a mix.
func (w *wal) ReplaceSuffix(lines [][]byte) error {
	if len(lines) == 0 {
		return w.Remove()
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := renameio.WriteFile(w.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("rewrite overflow log: %w", err)
	}
	return nil
}

// Remove deletes the log file; absence is not an error.
func (w *wal) Remove() error {
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove overflow log: %w", err)
	}
	return nil
}
