package history

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/felica/record"
)

const lockRetryDelay = 50 * time.Millisecond

// Store keeps one append-only log file per card under dir.
type Store struct {
	dir  string
	open func(path string) (logFile, error)
}

// logFile is the part of *os.File an append needs.
type logFile interface {
	Stat() (fs.FileInfo, error)
	WriteString(s string) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

func openLog(path string) (logFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, open: openLog}
}

// Path returns the log file of a card. The card id is lowercased hex.
func (s *Store) Path(cardID string) string {
	return filepath.Join(s.dir, strings.ToLower(cardID))
}

// FormatLine encodes a block as space separated lowercase hex pairs.
func FormatLine(raw []byte) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}

// ParseLine decodes a log line written by FormatLine. Blank separator lines
// and lines of the wrong size do not decode.
func ParseLine(line string) ([]byte, error) {
	fields := strings.Fields(line)
	if len(fields) != record.BlockSize {
		return nil, fmt.Errorf("log line has %d bytes, want %d", len(fields), record.BlockSize)
	}
	raw := make([]byte, 0, record.BlockSize)
	for _, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return nil, fmt.Errorf("log line byte %q is not a hex pair", f)
		}
		raw = append(raw, b[0])
	}
	return raw, nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &StorageError{Op: "create directory", Path: s.dir, Err: err}
	}
	return nil
}

// lock takes the exclusive advisory lock of a card log. The returned func
// releases it.
func (s *Store) lock(ctx context.Context, cardID string) (func(), error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	path := s.Path(cardID) + ".lock"
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, &StorageError{Op: "lock", Path: path, Err: err}
	}
	if !locked {
		return nil, &StorageError{Op: "lock", Path: path, Err: errors.New("lock not acquired")}
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warnf("unable to release lock %s: %s", path, err)
		}
	}, nil
}

// tail returns the last n lines of a card log. A missing file has no lines.
func (s *Store) tail(cardID string, n int) ([]string, error) {
	path := s.Path(cardID)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnf("history log %s does not exist", path)
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	lines, err := Tail(f, n)
	if err != nil {
		return nil, &StorageError{Op: "tail", Path: path, Err: err}
	}
	return lines, nil
}

// appendBlocks writes blocks to the end of a card log, preceded by a blank
// separator line when separate is set. Everything goes out in one write; on
// failure the file is cut back to its previous size.
func (s *Store) appendBlocks(cardID string, blocks [][]byte, separate bool) error {
	if len(blocks) == 0 {
		return nil
	}

	var sb strings.Builder
	if separate {
		sb.WriteString("\n")
	}
	for _, b := range blocks {
		sb.WriteString(FormatLine(b))
		sb.WriteString("\n")
	}

	path := s.Path(cardID)
	f, err := s.open(path)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &StorageError{Op: "stat", Path: path, Err: err}
	}
	size := info.Size()

	if _, err := f.WriteString(sb.String()); err != nil {
		return s.rollback(f, path, size, "append", err)
	}
	if err := f.Sync(); err != nil {
		return s.rollback(f, path, size, "sync", err)
	}
	return nil
}

func (s *Store) rollback(f logFile, path string, size int64, op string, cause error) error {
	if err := f.Truncate(size); err != nil {
		log.Errorf("unable to restore %s to %d bytes after failed %s: %s", path, size, op, err)
	}
	return &StorageError{Op: op, Path: path, Err: cause}
}
