// Package objectstore implements the persistent, hierarchical
// named-directory key/blob store bundles and shards are staged into.
// It offers no cross-file transactions, and single files are not
// replaced atomically either: Writer writes straight into the
// destination path.
//
// Grounded on parser/files.go's filesystem helpers: fileDigestMap's
// bounded-parallelism SHA-256 digesting (reused here for verifying a
// bundle's shards) and its os.ErrNotExist / path-validation conventions.
package objectstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Store roots a hierarchical directory/file store at a fixed origin
// directory on disk.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: creating root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's origin directory.
func (s *Store) Root() string { return s.root }

func (s *Store) resolve(rel string) (string, error) {
	p := filepath.Join(s.root, rel)
	cleanRel, err := filepath.Rel(s.root, p)
	if err != nil || !filepath.IsLocal(cleanRel) {
		return "", fmt.Errorf("objectstore: insecure path %q", rel)
	}
	return p, nil
}

// MkdirAll creates a named directory (and any parents) relative to the
// store root.
func (s *Store) MkdirAll(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

// Writer opens rel for streaming writes, creating or truncating it in
// place. Bytes go directly into the file at rel, so a write that fails
// or is never closed leaves a truncated or partial file there; the
// previous contents are not kept.
func (s *Store) Writer(rel string) (io.WriteCloser, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("objectstore: creating %s: %w", rel, err)
	}
	return f, nil
}

// Reader opens rel for streaming reads.
func (s *Store) Reader(rel string) (io.ReadCloser, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("objectstore: opening %s: %w", rel, err)
	}
	return f, nil
}

// ReadAll reads the entire contents of rel into memory. Callers on the
// converter's hot path should prefer Reader so they never
// materialize an entire shard; ReadAll is for small metadata files
// (manifest.json, config.json, tokenizer.json).
func (s *Store) ReadAll(rel string) ([]byte, error) {
	r, err := s.Reader(rel)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteAll writes data to rel in one call, replacing any existing file.
func (s *Store) WriteAll(rel string, data []byte) error {
	w, err := s.Writer(rel)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Delete removes a single file. It is not an error if rel does not
// exist.
func (s *Store) Delete(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveSubtree deletes rel and everything beneath it.
func (s *Store) RemoveSubtree(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// List returns the names of entries directly inside rel.
func (s *Store) List(rel string) ([]string, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Exists reports whether rel names an existing file or directory.
func (s *Store) Exists(rel string) bool {
	p, err := s.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Digest returns the sha256:<hex> digest of rel's contents, the same
// format parser/files.go::digestForFile produces.
func (s *Store) Digest(rel string) (string, error) {
	r, err := s.Reader(rel)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// DigestAll digests every rel in paths with bounded parallelism, mirroring
// parser/files.go::fileDigestMap's errgroup.SetLimit pattern.
func (s *Store) DigestAll(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(runtime.GOMAXPROCS(0)-1, 1))

	for _, rel := range paths {
		g.Go(func() error {
			digest, err := s.Digest(rel)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			out[rel] = digest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
