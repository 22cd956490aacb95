// Package gcs keeps household documents as JSON objects in a Cloud Storage bucket.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"burndown/internal/domain/ledger"
)

// DocumentStore implements ledger.Store with one object per household.
type DocumentStore struct {
	bucket *storage.BucketHandle
	prefix string
}

var _ ledger.Store = (*DocumentStore)(nil)

// NewClient opens a storage client, using credentialsFile when set.
func NewClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

func NewDocumentStore(client *storage.Client, bucket, prefix string) *DocumentStore {
	return &DocumentStore{bucket: client.Bucket(bucket), prefix: prefix}
}

// ObjectName returns the object key for a household.
func (s *DocumentStore) ObjectName(householdID string) string {
	return path.Join(s.prefix, householdID+".json")
}

func (s *DocumentStore) Get(ctx context.Context, householdID string) (*ledger.Document, error) {
	r, err := s.bucket.Object(s.ObjectName(householdID)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ledger.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc ledger.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// Put replaces the household's object in a single upload.
func (s *DocumentStore) Put(ctx context.Context, householdID string, doc *ledger.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	w := s.bucket.Object(s.ObjectName(householdID)).NewWriter(ctx)
	w.ContentType = "application/json"
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}
