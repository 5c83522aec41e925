// Package checkpoint records how far a load has read into each source object,
// so an interrupted run can resume where it stopped.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/cloudlab/aws"
)

// Completed marks a source object that has been read to the end.
// It is distinct from offset 0, which means "start from the beginning".
const Completed = int64(-1)

// State is the persisted progress of a load.
// Example:
//
//	store, _ := checkpoint.NewS3Store(client, "s3://my-bucket/checkpoints/load-1.json")
//	state, err := store.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	off, done := state.Position("s3://readings/2024/03.jsonl")
type State struct {
	Table   string           `json:"table,omitempty"` // Table the offsets were loaded into
	Offsets map[string]int64 `json:"offsets"`         // Source URI to next unread byte
}

// Position returns the offset to resume a source from and whether the
// source was already loaded completely.
func (s State) Position(source string) (offset int64, done bool) {
	off, ok := s.Offsets[source]
	if !ok {
		return 0, false
	}
	if off == Completed {
		return 0, true
	}
	return off, false
}

func (s State) clone() State {
	c := State{Table: s.Table, Offsets: make(map[string]int64, len(s.Offsets))}
	for k, v := range s.Offsets {
		c.Offsets[k] = v
	}
	return c
}

// Store saves and loads checkpoint state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// New picks a store for uri: s3:// and file:// locations are persisted,
// an empty uri keeps progress in memory only.
func New(client aws.S3Client, uri string) (Store, error) {
	switch {
	case uri == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, "s3://"):
		return NewS3Store(client, uri)
	case strings.HasPrefix(uri, "file://"):
		return NewFileStore(uri)
	default:
		return nil, fmt.Errorf("unsupported checkpoint location: %s", uri)
	}
}

// S3Store keeps the checkpoint in one S3 object.
type S3Store struct {
	client aws.S3Client
	bucket string
	key    string
}

// NewS3Store creates an S3Store from an s3://bucket/key URI.
func NewS3Store(client aws.S3Client, uri string) (*S3Store, error) {
	bucket, key, err := aws.ParseS3URI(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint location: %w", err)
	}
	return &S3Store{client: client, bucket: bucket, key: key}, nil
}

// Load reads the checkpoint object. A missing object is an empty state.
func (s *S3Store) Load(ctx context.Context) (State, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return State{}, nil
		}
		// Some S3-compatible stores answer NotFound instead
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return state, nil
}

// Save overwrites the checkpoint object.
func (s *S3Store) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// FileStore keeps the checkpoint in a local file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore from a file:// URI. The path must be
// absolute; its directory is created when missing.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("checkpoint path must be absolute: %s", cleanPath)
	}
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{path: cleanPath}, nil
}

// Load reads the checkpoint file. A missing file is an empty state.
func (f *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return state, nil
}

// Save writes the checkpoint through a temporary file and a rename, so a
// crash never leaves a half-written checkpoint behind.
func (f *FileStore) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}
