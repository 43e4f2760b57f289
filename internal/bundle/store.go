// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package bundle

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4"
	"github.com/samber/oops"

	"github.com/tessera-dev/tessera/internal/xdg"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// ErrObjectNotFound is returned by a BlobStore when no object exists at a key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// ContentEncoding is set when the bytes are served still encoded
	// (for example "gzip") and the client must decode them.
	ContentEncoding string
}

// BlobStore is the object storage bundles are served from.
type BlobStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Put(ctx context.Context, key string, r io.Reader) error
}

// FSStore is a BlobStore rooted at a directory. For a key it serves, in
// order, the plain file, then <key>.lz4 decompressed as it streams, then
// <key>.gz passed through with gzip content encoding.
type FSStore struct {
	root     string
	compress bool
}

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithLZ4 makes Put store objects lz4-compressed.
func WithLZ4() FSOption {
	return func(s *FSStore) { s.compress = true }
}

// NewFSStore creates a store rooted at dir, creating it if needed. An empty
// dir selects the XDG data directory.
func NewFSStore(dir string, opts ...FSOption) (*FSStore, error) {
	if dir == "" {
		var err error
		if dir, err = xdg.BundlesDir(); err != nil {
			return nil, err
		}
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return nil, err
	}
	s := &FSStore{root: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *FSStore) Root() string { return s.root }

// Open streams the object at key.
func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}

	if f, err := os.Open(p); err == nil {
		return f, ObjectInfo{}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, oops.With("key", key).Wrap(err)
	}

	if f, err := os.Open(p + ".lz4"); err == nil {
		return &lz4ReadCloser{Reader: lz4.NewReader(f), file: f}, ObjectInfo{}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, oops.With("key", key).Wrap(err)
	}

	if f, err := os.Open(p + ".gz"); err == nil {
		return f, ObjectInfo{ContentEncoding: "gzip"}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, oops.With("key", key).Wrap(err)
	}

	return nil, ObjectInfo{}, oops.With("key", key).Wrap(ErrObjectNotFound)
}

// Put writes r to key, replacing any previous object atomically.
func (s *FSStore) Put(_ context.Context, key string, r io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	target := p
	if s.compress {
		target = p + ".lz4"
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return oops.With("key", key).Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return oops.With("key", key).Wrap(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := s.write(tmp, r); err != nil {
		_ = tmp.Close()
		return oops.With("key", key).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.With("key", key).Wrap(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return oops.With("key", key).Wrap(err)
	}

	// Drop stale variants so Open does not serve an older encoding.
	for _, stale := range []string{p, p + ".lz4", p + ".gz"} {
		if stale != target {
			_ = os.Remove(stale)
		}
	}
	return nil
}

func (s *FSStore) write(w io.Writer, r io.Reader) error {
	if !s.compress {
		_, err := io.Copy(w, r)
		return err
	}
	zw := lz4.NewWriter(w)
	if _, err := io.Copy(zw, r); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func (s *FSStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || strings.Contains(key, "..") || clean == "/" {
		return "", oops.Code(errutil.CodeInvalidRequest).With("key", key).Errorf("invalid bundle key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

type lz4ReadCloser struct {
	*lz4.Reader
	file *os.File
}

func (r *lz4ReadCloser) Close() error {
	return r.file.Close()
}
