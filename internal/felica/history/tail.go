package history

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const tailBufferSize = 1024

// Tail returns the last n lines of r in file order. Blank lines count as
// lines. It reads backward from the end in fixed-size blocks and stops as
// soon as it holds enough line breaks, so the cost does not depend on the
// size of the file.
func Tail(r io.ReadSeeker, n int) ([]string, error) {
	return tail(r, n, tailBufferSize)
}

func tail(r io.ReadSeeker, n, bufSize int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	pos, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek end: %w", err)
	}

	// the final newline of the file terminates the last line, so one more
	// break than requested is needed to be sure the first line is whole
	need := n + 1
	var data []byte
	for need > 0 && pos > 0 {
		size := int64(bufSize)
		if pos < size {
			size = pos
		}
		pos -= size

		chunk := make([]byte, size)
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek %d: %w", pos, err)
		}
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("read at %d: %w", pos, err)
		}

		need -= bytes.Count(chunk, []byte{'\n'})
		data = append(chunk, data...)
	}

	lines := splitLines(string(data))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
