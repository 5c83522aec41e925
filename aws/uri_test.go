package aws

import "testing"

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://readings/2024/01/data.jsonl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "readings" {
		t.Errorf("bucket mismatch: got %s, want readings", bucket)
	}
	if key != "2024/01/data.jsonl" {
		t.Errorf("key mismatch: got %s, want 2024/01/data.jsonl", key)
	}
}

func TestParseS3URIInvalid(t *testing.T) {
	testCases := []string{
		"",
		"s3://bucket-only",
		"s3://bucket/",
		"https://bucket/key",
		"bucket/key",
	}
	for _, uri := range testCases {
		t.Run(uri, func(t *testing.T) {
			if _, _, err := ParseS3URI(uri); err == nil {
				t.Errorf("expected error for %q", uri)
			}
		})
	}
}
