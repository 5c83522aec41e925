package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gurre/cloudlab/integration/mock"
	"github.com/gurre/cloudlab/reading"
)

func testConfig() Config {
	return Config{
		Kind:   reading.KindTempHum,
		Count:  5,
		Seed:   9,
		Start:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Step:   time.Minute,
		Output: "s3://readings/gen.jsonl",
	}
}

func TestUpload(t *testing.T) {
	cfg := testConfig()
	gen, err := reading.NewGenerator(cfg.Kind, cfg.Seed, cfg.Start, cfg.Step)
	if err != nil {
		t.Fatal(err)
	}
	client := mock.NewS3Client()

	if err := upload(context.Background(), client, "readings", "gen.jsonl", gen, cfg); err != nil {
		t.Fatalf("upload: %v", err)
	}

	data, ok := client.File("readings", "gen.jsonl")
	if !ok {
		t.Fatal("object not written")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"dt":"2024-03-01T00:00:00Z","temp":`) {
		t.Errorf("unexpected first line %s", lines[0])
	}
	if ct := client.ContentTypes["readings/gen.jsonl"]; ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	cfg := testConfig()
	var a, b bytes.Buffer
	for _, buf := range []*bytes.Buffer{&a, &b} {
		gen, err := reading.NewGenerator(cfg.Kind, cfg.Seed, cfg.Start, cfg.Step)
		if err != nil {
			t.Fatal(err)
		}
		if err := generate(buf, gen, cfg); err != nil {
			t.Fatal(err)
		}
	}
	if a.String() != b.String() {
		t.Error("same seed produced different output")
	}
}
