// Package mock holds in-memory AWS clients for the integration tests.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is an in-memory implementation of aws.S3Client that can also
// stream objects line by line like s3streamer.
type S3Client struct {
	mu sync.RWMutex
	// Maps bucket/key to object content
	Files map[string][]byte
	// Maps bucket/key to content type
	ContentTypes map[string]string
}

// NewS3Client creates an empty mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{
		Files:        make(map[string][]byte),
		ContentTypes: make(map[string]string),
	}
}

// AddFile stores content under bucket/key.
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[bucket+"/"+key] = content
}

// File returns the content stored under bucket/key.
func (m *S3Client) File(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.Files[bucket+"/"+key]
	return data, ok
}

func (m *S3Client) lookup(bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.Files[bucket+"/"+key]
	if !ok {
		return nil, &types.NoSuchKey{
			Message: aws.String(fmt.Sprintf("The specified key does not exist: %s (have %v)", key, m.listKeys())),
		}
	}
	return content, nil
}

// GetObject returns a stored object or NoSuchKey.
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	content, err := m.lookup(*params.Bucket, *params.Key)
	if err != nil {
		return nil, err
	}
	contentLength := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ETag:          etag(content),
		ContentLength: &contentLength,
	}, nil
}

// PutObject stores the request body.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	bucketKey := *params.Bucket + "/" + *params.Key
	m.mu.Lock()
	m.Files[bucketKey] = data
	if params.ContentType != nil {
		m.ContentTypes[bucketKey] = *params.ContentType
	}
	m.mu.Unlock()

	return &s3.PutObjectOutput{ETag: etag(data)}, nil
}

// Stream calls fn for each line starting at byte offset. Like s3streamer,
// the offset passed to fn is where the line starts relative to offset.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	content, err := m.lookup(bucket, key)
	if err != nil {
		return fmt.Errorf("mock S3: %w", err)
	}
	if offset > int64(len(content)) {
		return fmt.Errorf("mock S3: offset %d beyond object size %d", offset, len(content))
	}

	pos := offset
	for pos < int64(len(content)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		rest := content[pos:]
		end := bytes.IndexByte(rest, '\n')
		line := rest
		next := int64(len(content))
		if end >= 0 {
			line = rest[:end]
			next = pos + int64(end) + 1
		}
		if len(line) > 0 {
			if err := fn(line, pos-offset); err != nil {
				return err
			}
		}
		pos = next
	}
	return nil
}

// listKeys is used in error messages; callers hold m.mu.
func (m *S3Client) listKeys() []string {
	keys := make([]string, 0, len(m.Files))
	for k := range m.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func etag(content []byte) *string {
	return aws.String(fmt.Sprintf("\"%x\"", len(content)))
}

// Keys lists stored objects under prefix.
func (m *S3Client) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, k := range m.listKeys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
