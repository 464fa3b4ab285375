package logs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// LastLines returns up to n lines from the end of path, oldest first. A
// final line without a newline is included, so the last words of a process
// killed mid-write are not lost. A missing file yields no lines.
func LastLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var ring []string
	total := 0
	_, err := scanFrom(path, 0, true, func(line string) error {
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			ring[total%n] = line
		}
		total++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if total <= n {
		return ring, nil
	}
	start := total % n
	out := make([]string, 0, n)
	out = append(out, ring[start:]...)
	return append(out, ring[:start]...), nil
}

// scanFrom calls fn for each complete line after offset and returns the
// offset just past the last line passed to fn. With partial set, an
// unterminated final line is passed to fn as well.
func scanFrom(path string, offset int64, partial bool, fn func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return offset, fmt.Errorf("seek log file: %w", err)
		}
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && (partial || line[len(line)-1] == '\n') {
			offset += int64(len(line))
			if ferr := fn(string(bytes.TrimRight(line, "\r\n"))); ferr != nil {
				return offset, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
	}
}
