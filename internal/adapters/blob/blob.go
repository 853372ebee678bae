// Package blob stores uploaded media under a local directory.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/intervue/pkg/metrics"
)

var (
	ErrInvalidKey = errors.New("invalid blob key")
	ErrNotFound   = errors.New("blob not found")
)

// Store writes blobs as files below root.
type Store struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidKey)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// ChunkKey names the blob of one media chunk.
func ChunkKey(attemptID string, sequence int64, source string) string {
	if source == "" {
		source = "media"
	}
	return fmt.Sprintf("attempts/%s/chunks/%08d-%s.bin", clean(attemptID), sequence, clean(source))
}

// ChunkMetaKey names the metadata sidecar of a media chunk.
func ChunkMetaKey(attemptID string, sequence int64, source string) string {
	return strings.TrimSuffix(ChunkKey(attemptID, sequence, source), ".bin") + ".json"
}

// ChunkMeta describes a stored media chunk.
type ChunkMeta struct {
	AttemptID  string    `json:"attempt_id"`
	Sequence   int64     `json:"sequence"`
	Source     string    `json:"source,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int       `json:"size"`
}

// PutChunk stores a chunk and its sidecar and returns the chunk path. The
// sidecar goes first, so a chunk on disk always has its metadata.
func (s *Store) PutChunk(ctx context.Context, meta ChunkMeta, data []byte) (string, error) {
	meta.Size = len(data)
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode chunk meta: %w", err)
	}
	if _, err := s.Put(ctx, ChunkMetaKey(meta.AttemptID, meta.Sequence, meta.Source), raw); err != nil {
		return "", err
	}
	return s.Put(ctx, ChunkKey(meta.AttemptID, meta.Sequence, meta.Source), data)
}

// Meta reads the sidecar of a stored chunk.
func (s *Store) Meta(ctx context.Context, attemptID string, sequence int64, source string) (ChunkMeta, error) {
	raw, err := s.Get(ctx, ChunkMetaKey(attemptID, sequence, source))
	if err != nil {
		return ChunkMeta{}, err
	}
	var meta ChunkMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ChunkMeta{}, fmt.Errorf("decode chunk meta: %w", err)
	}
	return meta, nil
}

// PhotoKey names the proctor photo of an attempt.
func PhotoKey(attemptID, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("attempts/%s/proctor-photo.%s", clean(attemptID), clean(ext))
}

// Put writes data atomically and returns its path.
func (s *Store) Put(_ context.Context, key string, data []byte) (string, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("blob_put", float64(time.Since(start).Milliseconds()))
	}()

	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return path, nil
}

// Get reads a blob.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Exists reports whether a blob is stored under key.
func (s *Store) Exists(_ context.Context, key string) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, cleaned), nil
}

// clean keeps a single path element free of separators.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
