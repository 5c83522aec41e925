// Command readings-gen writes synthetic readings as JSON lines, to stdout or
// to an S3 object, for exercising readings-load.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/logging"
	"github.com/gurre/cloudlab/reading"
	"go.uber.org/zap"
)

// Config holds the command-line configuration for the generator.
type Config struct {
	Kind         reading.Kind
	Count        int
	Seed         int64
	Start        time.Time
	Step         time.Duration
	CorruptEvery int
	Output       string // "-" or s3://bucket/key
	Region       string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("readings-gen", flag.ExitOnError)
	kind := fs.String("kind", string(reading.KindData), "Reading layout (data|temphum)")
	count := fs.Int("count", 1000, "Number of lines")
	seed := fs.Int64("seed", time.Now().UnixNano(), "Random seed")
	start := fs.String("start", "", "RFC3339 time of the first reading (default: top of the current hour)")
	step := fs.Duration("step", time.Minute, "Interval between readings")
	corruptEvery := fs.Int("corrupt-every", 0, "Replace every n-th line with a malformed one")
	output := fs.String("output", "-", "Destination: - for stdout or s3://bucket/key")
	region := fs.String("region", config.DefaultRegion, "AWS region for S3 output")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := Config{
		Kind:         reading.Kind(*kind),
		Count:        *count,
		Seed:         *seed,
		Start:        time.Now().UTC().Truncate(time.Hour),
		Step:         *step,
		CorruptEvery: *corruptEvery,
		Output:       *output,
		Region:       *region,
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		cfg.Start = t
	}
	if cfg.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	log, err := logging.FromEnv("readings-gen")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	gen, err := reading.NewGenerator(cfg.Kind, cfg.Seed, cfg.Start, cfg.Step)
	if err != nil {
		return err
	}

	if cfg.Output == "-" {
		return generate(os.Stdout, gen, cfg)
	}

	bucket, key, err := aws.ParseS3URI(cfg.Output)
	if err != nil {
		return err
	}
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	if err := upload(ctx, aws.NewS3Client(s3.NewFromConfig(awsCfg)), bucket, key, gen, cfg); err != nil {
		return err
	}
	log.Info("readings written",
		zap.String("output", cfg.Output),
		zap.Int("count", cfg.Count),
		zap.Int64("seed", cfg.Seed))
	return nil
}

func generate(w io.Writer, gen *reading.Generator, cfg Config) error {
	return gen.WriteLines(w, cfg.Count, cfg.CorruptEvery)
}

// upload renders the readings in memory and stores them in one object.
func upload(ctx context.Context, client aws.S3Client, bucket, key string, gen *reading.Generator, cfg Config) error {
	var buf bytes.Buffer
	if err := generate(&buf, gen, cfg); err != nil {
		return err
	}
	contentType := "application/x-ndjson"
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	}); err != nil {
		return fmt.Errorf("failed to write s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
