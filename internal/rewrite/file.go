package rewrite

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is a feature file held as lines, with enough of its layout
// recorded to write it back byte-for-byte where untouched. Lines are split
// on "\n" only, so a line that ended in "\r\n" keeps its trailing "\r" and
// each line carries its own ending.
type Document struct {
	Lines           []string
	TrailingNewline bool
}

// ReadFile loads path as lines.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Split(data), nil
}

// Split breaks data into lines and records whether the content ends with a
// newline.
func Split(data []byte) Document {
	var doc Document
	text := string(data)
	if strings.HasSuffix(text, "\n") {
		doc.TrailingNewline = true
		text = strings.TrimSuffix(text, "\n")
	}
	if text == "" && !doc.TrailingNewline {
		return doc
	}
	doc.Lines = strings.Split(text, "\n")
	return doc
}

// Bytes joins the lines back using the recorded layout.
func (d Document) Bytes() []byte {
	s := strings.Join(d.Lines, "\n")
	if d.TrailingNewline {
		s += "\n"
	}
	return []byte(s)
}

// WriteFile atomically replaces path with doc using the temp-file, fsync,
// rename pattern. The original file is untouched if any step fails.
func WriteFile(path string, doc Document) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".feature-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(doc.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing lines: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
