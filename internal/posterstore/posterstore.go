// Package posterstore manages the three on-disk poster buckets:
// original (first-seen source image, write-once), working (the per-item
// scratch copy a job renders onto, cleared after each run), and modified
// (the last successfully applied, badged poster). Writes go through a
// temp-file-then-rename sequence so a crash mid-write never leaves a
// half-written poster visible to a reader. Files are not checksummed, and
// the temp file is not fsynced before the rename.
package posterstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

var extensions = []string{".jpg", ".jpeg", ".png", ".webp"}

const filePerm = 0o640

// Store manages original/working/modified poster buckets under root.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating the three buckets if
// needed.
func New(root string) (*Store, error) {
	s := &Store{root: root}
	for _, bucket := range []string{"original", "working", "modified"} {
		if err := os.MkdirAll(filepath.Join(root, bucket), 0o750); err != nil {
			return nil, apperr.New("posterstore.New", apperr.StorageIO, err)
		}
	}
	return s, nil
}

func (s *Store) bucketPath(bucket, itemID, ext string) string {
	return filepath.Join(s.root, bucket, itemID+ext)
}

// find probes the known extensions for an existing file in bucket,
// returning its path.
func (s *Store) find(bucket, itemID string) (string, bool) {
	for _, ext := range extensions {
		p := s.bucketPath(bucket, itemID, ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Exists reports whether a poster is present in bucket for itemID.
func (s *Store) Exists(bucket, itemID string) bool {
	_, ok := s.find(bucket, itemID)
	return ok
}

// Read returns the bytes of the poster in bucket for itemID.
func (s *Store) Read(bucket, itemID string) ([]byte, error) {
	p, ok := s.find(bucket, itemID)
	if !ok {
		return nil, apperr.New("posterstore.Read", apperr.StorageIO, os.ErrNotExist)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, apperr.New("posterstore.Read", apperr.StorageIO, err)
	}
	return data, nil
}

// SaveOriginal writes itemID's poster into the original bucket exactly
// once; a second call is a no-op, preserving the first-seen source image
// so reverts remain possible no matter how many times an item is
// reprocessed.
func (s *Store) SaveOriginal(itemID, ext string, data []byte) error {
	if s.Exists("original", itemID) {
		return nil
	}
	return s.atomicWrite("original", itemID, ext, data)
}

// WriteWorking overwrites itemID's scratch copy in the working bucket.
// Callers clear it after each job item completes.
func (s *Store) WriteWorking(itemID, ext string, data []byte) error {
	return s.atomicWrite("working", itemID, ext, data)
}

// ClearWorking removes itemID's working-bucket file, if any.
func (s *Store) ClearWorking(itemID string) error {
	return s.delete("working", itemID)
}

// SaveModified overwrites itemID's badged poster in the modified bucket.
func (s *Store) SaveModified(itemID, ext string, data []byte) error {
	return s.atomicWrite("modified", itemID, ext, data)
}

// DeleteModified removes itemID's modified-bucket file, used on revert.
func (s *Store) DeleteModified(itemID string) error {
	return s.delete("modified", itemID)
}

func (s *Store) delete(bucket, itemID string) error {
	p, ok := s.find(bucket, itemID)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil {
		return apperr.New("posterstore.delete", apperr.StorageIO, err)
	}
	return nil
}

// atomicWrite writes data to a temp file in the bucket directory and
// renames it into place, so a reader never observes a partial file. Any
// stale file under a different extension for the same item is removed
// first, since a source can switch formats between fetches.
func (s *Store) atomicWrite(bucket, itemID, ext string, data []byte) error {
	if existing, ok := s.find(bucket, itemID); ok && filepath.Ext(existing) != ext {
		_ = os.Remove(existing)
	}

	dir := filepath.Join(s.root, bucket)
	tmp, err := os.CreateTemp(dir, itemID+".tmp-*")
	if err != nil {
		return apperr.New("posterstore.atomicWrite", apperr.StorageIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.New("posterstore.atomicWrite", apperr.StorageIO, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.New("posterstore.atomicWrite", apperr.StorageIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.New("posterstore.atomicWrite", apperr.StorageIO, err)
	}

	dest := s.bucketPath(bucket, itemID, ext)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return apperr.New("posterstore.atomicWrite", apperr.StorageIO, err)
	}
	return nil
}

// ExtFromContentType maps a response Content-Type to one of the known
// poster extensions, defaulting to .jpg for anything unrecognized.
func ExtFromContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		return ".jpg"
	}
}

// Path exposes a bucket file's path without reading it, for handlers that
// stream the file directly.
func (s *Store) Path(bucket, itemID string) (string, error) {
	p, ok := s.find(bucket, itemID)
	if !ok {
		return "", apperr.New("posterstore.Path", apperr.StorageIO, fmt.Errorf("%s/%s: %w", bucket, itemID, os.ErrNotExist))
	}
	return p, nil
}
