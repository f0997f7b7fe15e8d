// Package ledger provides the ContentLedger adapter backed by an append-only
// text file holding one fingerprint per line.
package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// FileLedger implements ports.ContentLedger.
//
// Exists scans the whole file on every call. That linear scan is fine for a few
// hundred thousand entries; past that, load the lines into a set at startup and
// keep the file as its write-ahead log.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileLedger creates a ledger stored at path. The file is created lazily.
func NewFileLedger(path string) *FileLedger {
	if path == "" {
		path = "./data/fingerprints.txt"
	}
	return &FileLedger{path: path}
}

// Path returns the location of the ledger file.
func (l *FileLedger) Path() string { return l.path }

// Exists reports whether fingerprint has been recorded.
func (l *FileLedger) Exists(ctx context.Context, fingerprint string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	err := l.scan(ctx, func(line string) bool {
		if line == fingerprint {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// Record appends fingerprint as one line. The line is written with a single
// write on an O_APPEND descriptor so concurrent writers never interleave.
func (l *FileLedger) Record(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fingerprint == "" || strings.ContainsAny(fingerprint, "\r\n") {
		return entities.NewError(entities.KindStorage, "record fingerprint", fmt.Errorf("invalid fingerprint %q", fingerprint))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open(os.O_WRONLY | os.O_APPEND | os.O_CREATE)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(fingerprint + "\n"); err != nil {
		f.Close()
		return entities.NewError(entities.KindStorage, "append ledger", err)
	}
	if err := f.Close(); err != nil {
		return entities.NewError(entities.KindStorage, "close ledger", err)
	}
	return nil
}

// Count returns the number of recorded fingerprints.
func (l *FileLedger) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	err := l.scan(ctx, func(string) bool {
		n++
		return true
	})
	return n, err
}

// scan calls fn for each non-empty line until fn returns false.
func (l *FileLedger) scan(ctx context.Context, fn func(line string) bool) error {
	f, err := l.open(os.O_RDONLY | os.O_CREATE)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return entities.NewError(entities.KindStorage, "read ledger", err)
	}
	return nil
}

func (l *FileLedger) open(flag int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, entities.NewError(entities.KindStorage, "create ledger directory", err)
	}
	f, err := os.OpenFile(l.path, flag, 0o644)
	if err != nil {
		return nil, entities.NewError(entities.KindStorage, "open ledger", err)
	}
	return f, nil
}
