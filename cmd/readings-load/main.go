// Command readings-load loads JSON-lines readings from S3 objects into a
// PostgreSQL table, optionally mirroring them into DynamoDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gurre/cloudlab/archive"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/checkpoint"
	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/loader"
	"github.com/gurre/cloudlab/logging"
	"github.com/gurre/cloudlab/metrics"
	"github.com/gurre/cloudlab/notify"
	"github.com/gurre/cloudlab/pgdb"
	"github.com/gurre/cloudlab/reading"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

// sourceList collects repeated --source flags.
type sourceList []string

func (s *sourceList) String() string { return strings.Join(*s, ",") }

func (s *sourceList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("readings-load", flag.ExitOnError)

	var sources sourceList
	fs.Var(&sources, "source", "S3 URI of a JSON-lines object (repeatable)")
	tableName := fs.String("table", "", "PostgreSQL table to load into")
	kind := fs.String("kind", string(reading.KindData), "Table layout (data|temphum)")
	createTable := fs.Bool("create-table", false, "Create the table when it does not exist")

	host := fs.String("host", "localhost", "DB host")
	dbname := fs.String("db", "cs148db", "DB name")
	user := fs.String("user", "centos", "DB user")
	password := fs.String("password", "", "DB password (ignored when DATABASE_URL is set)")
	sslMode := fs.String("sslmode", "disable", "sslmode connection parameter")

	region := fs.String("region", os.Getenv("AWS_REGION"), "AWS region (defaults to AWS_REGION env)")
	archiveTable := fs.String("archive-table", "", "DynamoDB table mirroring the loaded rows")
	resume := fs.String("resume", "", "Checkpoint location (s3://... or file:///...)")
	report := fs.String("report", "", "S3 URI for the final report")
	notifyTopic := fs.String("notify-topic", "", "SNS topic ARN told about the finished load")
	maxWorkers := fs.Int("workers", 4, "Objects loaded concurrently")
	batchSize := fs.Int("batch", 100, "Rows per transaction")
	dryRun := fs.Bool("dry-run", false, "Decode and count without writing")
	shutdownTimeout := fs.Duration("shutdown-timeout", time.Minute, "Grace period after an interrupt")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *region == "" {
		*region = config.DefaultRegion
	}

	cfg := &config.LoadConfig{
		TableName:       *tableName,
		Kind:            reading.Kind(*kind),
		Sources:         sources,
		Region:          *region,
		ResumeURI:       *resume,
		ArchiveTable:    *archiveTable,
		ReportURI:       *report,
		NotifyTopic:     *notifyTopic,
		MaxWorkers:      *maxWorkers,
		BatchSize:       *batchSize,
		CreateTable:     *createTable,
		DryRun:          *dryRun,
		ShutdownTimeout: *shutdownTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:     *host,
		User:     *user,
		Password: *password,
		Database: *dbname,
		SSLMode:  *sslMode,
	}
	dbCfg.LoadFromEnv(config.Environ)

	log, err := logging.FromEnv("readings-load")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, interrupted, cancel := shutdownContext(cfg.ShutdownTimeout, log)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)

	store, err := checkpoint.New(s3Client, cfg.ResumeURI)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	var writers []loader.Writer
	if !cfg.DryRun {
		db, err := pgdb.Open(ctx, dbCfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("closing database", zap.Error(err))
			}
		}()
		if err := prepareTable(ctx, db, cfg); err != nil {
			return err
		}
		writers = append(writers, pgdb.NewReadingWriter(db, cfg.TableName, cfg.Kind))

		if cfg.ArchiveTable != "" {
			ddb := aws.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
			writers = append(writers, archive.NewDynamoDBWriter(ddb, cfg.ArchiveTable, cfg.TableName, archive.MaxBatchSize))
		}
	}

	var uploader loader.ReportUploader
	if cfg.ReportURI != "" {
		uploader = metrics.NewS3Uploader(s3Client)
	}

	l := loader.New(cfg, s3streamer.NewS3Streamer(rawS3Client), reading.NewJSONDecoder(), writers, store, uploader, log)
	if cfg.NotifyTopic != "" {
		l.NotifyWith(notify.NewPublisher(aws.NewSNSClient(sns.NewFromConfig(awsCfg)), cfg.NotifyTopic, log))
	}

	go func() {
		select {
		case <-interrupted:
			l.Shutdown()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("Starting load %s of %d objects into %s\n", l.RunID(), len(cfg.Sources), cfg.TableName)
	result, err := l.Run(ctx)
	fmt.Println(result)
	if err != nil {
		return err
	}
	if cfg.ReportURI != "" {
		fmt.Printf("Report uploaded to %s\n", cfg.ReportURI)
	}
	return nil
}

// prepareTable makes sure the target table exists.
func prepareTable(ctx context.Context, db *pgdb.DB, cfg *config.LoadConfig) error {
	exists, err := db.TableExists(ctx, cfg.TableName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !cfg.CreateTable {
		return fmt.Errorf("table %s does not exist (use --create-table)", cfg.TableName)
	}
	return db.CreateTable(ctx, cfg.Kind, cfg.TableName)
}

// shutdownContext returns a context cancelled grace after the first
// interrupt or SIGTERM, and a channel closed on that signal so the load can
// stop taking new work. A second signal is not caught and kills the process.
func shutdownContext(grace time.Duration, log *zap.Logger) (context.Context, <-chan struct{}, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		<-sigCtx.Done()
		stop()
		if ctx.Err() != nil {
			return
		}
		close(interrupted)
		log.Warn("interrupted, finishing in-flight batches", zap.Duration("grace", grace))
		select {
		case <-time.After(grace):
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, interrupted, cancel
}
