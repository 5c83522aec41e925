package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 stores objects in a map keyed by bucket/key.
type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := State{
		Table:   "testtable",
		Offsets: map[string]int64{"s3://b/a.jsonl": 1024},
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	// Mutating the saved value must not leak into the store
	state.Offsets["s3://b/a.jsonl"] = 1

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if loaded.Table != "testtable" {
		t.Errorf("Table mismatch: got %s", loaded.Table)
	}
	if off, done := loaded.Position("s3://b/a.jsonl"); off != 1024 || done {
		t.Errorf("Position mismatch: got %d/%v, want 1024/false", off, done)
	}
}

func TestMemoryStore_EmptyState(t *testing.T) {
	state, err := NewMemoryStore().Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load empty state: %v", err)
	}
	if state.Table != "" || len(state.Offsets) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
	if off, done := state.Position("s3://b/k"); off != 0 || done {
		t.Errorf("unknown source should start at 0, got %d/%v", off, done)
	}
}

func TestPositionCompleted(t *testing.T) {
	state := State{Offsets: map[string]int64{"s3://b/k": Completed}}
	off, done := state.Position("s3://b/k")
	if !done || off != 0 {
		t.Errorf("expected completed source, got %d/%v", off, done)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	uri := "file://" + filepath.Join(t.TempDir(), "checkpoint.json")

	store, err := NewFileStore(uri)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	ctx := context.Background()
	state := State{Table: "t", Offsets: map[string]int64{"s3://b/x": 2048, "s3://b/y": Completed}}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if loaded.Offsets["s3://b/x"] != 2048 || loaded.Offsets["s3://b/y"] != Completed {
		t.Errorf("offsets mismatch: %+v", loaded.Offsets)
	}
	if _, err := os.Stat(store.path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind")
	}
}

func TestFileStore_NonExistent(t *testing.T) {
	store, err := NewFileStore("file://" + filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load non-existent state: %v", err)
	}
	if len(state.Offsets) != 0 {
		t.Errorf("expected empty state for non-existent file, got: %+v", state)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewFileStore("file://" + path)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestFileStore_InvalidURI(t *testing.T) {
	testCases := []string{
		"s3://bucket/key",
		"http://example.com/file",
		"/path/without/scheme",
	}

	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := NewFileStore(uri); err == nil {
				t.Errorf("expected error for invalid file URI: %s", uri)
			}
		})
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "dir")

	store, err := NewFileStore("file://" + filepath.Join(nestedDir, "checkpoint.json"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	if _, err := os.Stat(nestedDir); os.IsNotExist(err) {
		t.Error("expected nested directory to be created")
	}
	if err := store.Save(context.Background(), State{Table: "test"}); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}
}

func TestS3Store_RoundTrip(t *testing.T) {
	client := newFakeS3()
	store, err := NewS3Store(client, "s3://my-bucket/path/to/checkpoint.json")
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}
	if store.bucket != "my-bucket" || store.key != "path/to/checkpoint.json" {
		t.Fatalf("unexpected location %s/%s", store.bucket, store.key)
	}

	ctx := context.Background()
	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("missing object should load as empty state: %v", err)
	}
	if len(state.Offsets) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}

	if err := store.Save(ctx, State{Table: "t", Offsets: map[string]int64{"s3://b/k": 77}}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Offsets["s3://b/k"] != 77 {
		t.Errorf("offset mismatch: %+v", loaded)
	}
}

func TestS3Store_SaveError(t *testing.T) {
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	store, err := NewS3Store(client, "s3://b/cp.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), State{}); err == nil {
		t.Error("expected save error")
	}
}

func TestS3Store_InvalidURI(t *testing.T) {
	testCases := []string{
		"http://bucket/key",
		"https://bucket/key",
		"file:///path/to/file",
		"bucket/key",
		"s3://bucket-only",
	}

	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, err := NewS3Store(nil, uri); err == nil {
				t.Errorf("expected error for invalid S3 URI: %s", uri)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if s, err := New(nil, ""); err != nil {
		t.Errorf("empty uri: %v", err)
	} else if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("empty uri should give a memory store, got %T", s)
	}
	if s, err := New(newFakeS3(), "s3://b/k.json"); err != nil {
		t.Errorf("s3 uri: %v", err)
	} else if _, ok := s.(*S3Store); !ok {
		t.Errorf("expected S3Store, got %T", s)
	}
	if _, err := New(nil, "ftp://host/x"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Save(ctx, State{Table: "other", Offsets: map[string]int64{"s3://b/a": 10}}); err != nil {
		t.Fatal(err)
	}

	// State of another table is not resumed
	tr, err := NewTracker(ctx, store, "readings")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if off, _ := tr.Position("s3://b/a"); off != 0 {
		t.Errorf("expected fresh start, got %d", off)
	}

	if err := tr.Advance(ctx, "s3://b/a", 512); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := tr.Complete(ctx, "s3://b/c"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// A second tracker on the same store resumes
	tr2, err := NewTracker(ctx, store, "readings")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if off, done := tr2.Position("s3://b/a"); off != 512 || done {
		t.Errorf("got %d/%v, want 512/false", off, done)
	}
	if _, done := tr2.Position("s3://b/c"); !done {
		t.Error("expected s3://b/c to be complete")
	}
	if snap := tr2.Snapshot(); snap.Table != "readings" || len(snap.Offsets) != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
