// Package filestore persists face samples in a single gob file.
//
// Every mutation rewrites the whole file: the new content is written to a
// temporary file in the same directory, synced, and renamed over the old one,
// and the directory is synced after the rename, so a crash leaves either the
// previous or the new state on disk.
package filestore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const fileVersion = 1

// ErrUnsupportedVersion is returned when the file was written by an incompatible layout.
var ErrUnsupportedVersion = errors.New("unsupported store file version")

type fileSample struct {
	ID        string
	Name      string
	Embedding []float32
	CreatedAt time.Time
}

type fileContent struct {
	Version int
	Samples []fileSample
}

// Backend is a database.Backend over one file.
type Backend struct {
	path    string
	syncDir func(dir string) error

	mu   sync.Mutex
	rows []database.StoredEmbedding
}

// Open returns a backend for path. A missing file is an empty store; the parent
// directory is created if needed.
func Open(path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	b := &Backend{path: path, syncDir: syncDirectory}
	rows, err := b.read()
	if err != nil {
		return nil, err
	}
	b.rows = rows
	return b, nil
}

func (b *Backend) read() ([]database.StoredEmbedding, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening store file: %w", err)
	}
	defer f.Close()

	var content fileContent
	if err := gob.NewDecoder(f).Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding store file %s: %w", b.path, err)
	}
	if content.Version != fileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, content.Version)
	}

	rows := make([]database.StoredEmbedding, len(content.Samples))
	for i, s := range content.Samples {
		rows[i] = database.StoredEmbedding(s)
	}
	return rows, nil
}

// write atomically replaces the file with rows.
func (b *Backend) write(rows []database.StoredEmbedding) error {
	content := fileContent{Version: fileVersion, Samples: make([]fileSample, len(rows))}
	for i, r := range rows {
		content.Samples[i] = fileSample(r)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(&content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing store file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	committed = true
	if err := b.syncDir(filepath.Dir(b.path)); err != nil {
		return fmt.Errorf("syncing store directory: %w", err)
	}
	return nil
}

// syncDirectory flushes the directory entry so a completed rename survives a crash.
func syncDirectory(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Load returns every stored sample, oldest first.
func (b *Backend) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.rows), nil
}

// Append adds rows and rewrites the file.
func (b *Backend) Append(ctx context.Context, rows []database.StoredEmbedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := append(b.rows[:len(b.rows):len(b.rows)], rows...)
	if err := b.write(next); err != nil {
		return err
	}
	b.rows = next
	return nil
}

// DeleteName drops every sample of name and rewrites the file.
func (b *Backend) DeleteName(ctx context.Context, name string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := withoutName(b.rows, name)
	removed := len(b.rows) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := b.write(next); err != nil {
		return 0, err
	}
	b.rows = next
	return removed, nil
}

// ReplaceName swaps the samples of name for rows and rewrites the file.
func (b *Backend) ReplaceName(ctx context.Context, name string, rows []database.StoredEmbedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := append(withoutName(b.rows, name), rows...)
	if err := b.write(next); err != nil {
		return err
	}
	b.rows = next
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (b *Backend) Close() error {
	return nil
}

func withoutName(rows []database.StoredEmbedding, name string) []database.StoredEmbedding {
	out := make([]database.StoredEmbedding, 0, len(rows))
	for _, r := range rows {
		if r.Name != name {
			out = append(out, r)
		}
	}
	return out
}

var _ database.Backend = (*Backend)(nil)
