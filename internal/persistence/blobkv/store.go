// Package blobkv adapts a blob.Store into the collection Driver contract.
// Each collection blob becomes one object; a full rewrite is one Put.
package blobkv

import (
	"bytes"
	"context"
	"errors"
	"io"

	"patientcore/internal/blob"
	"patientcore/pkg/domain"
)

var _ domain.Driver = (*Store)(nil)

const contentType = "application/json"

// Store persists collection payloads as JSON objects in a blob store.
type Store struct {
	blobs blob.Store
}

// New wraps the given blob store.
func New(blobs blob.Store) *Store { return &Store{blobs: blobs} }

// Load reads the object stored under key. A never-written key is reported as
// absent, not as an error.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Save overwrites the object stored under key.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	_, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType})
	return err
}

// Close is a no-op; blob backends hold no long-lived handles here.
func (s *Store) Close() error { return nil }
