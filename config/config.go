// Package config holds the settings for each command-line tool and the
// validation rules applied before any connection is attempted.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/reading"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// getEnv returns the variable or fallback when unset.
func getEnv(lookup LookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

// ErrMissingEnv is returned when a publish credential is absent.
var ErrMissingEnv = errors.New("ARN, ACCESS_KEY, and SECRET_KEY environment variables must be set")

// DefaultRegion is the region the publisher targets unless told otherwise.
const DefaultRegion = "us-west-1"

// PublishConfig holds what postmsg needs to reach a topic.
type PublishConfig struct {
	TopicARN       string // from ARN
	AccessKey      string // from ACCESS_KEY
	SecretKey      string // from SECRET_KEY
	Region         string
	CheckPrincipal string // optional principal ARN for the IAM preflight
}

// LoadPublishEnv fills the topic and credentials from the environment.
// All three variables must be present.
func (c *PublishConfig) LoadPublishEnv(lookup LookupFunc) error {
	topic, okTopic := lookup("ARN")
	acc, okAcc := lookup("ACCESS_KEY")
	sec, okSec := lookup("SECRET_KEY")
	if !okTopic || !okAcc || !okSec {
		return ErrMissingEnv
	}
	c.TopicARN, c.AccessKey, c.SecretKey = topic, acc, sec
	return nil
}

// Validate checks the publish settings.
func (c *PublishConfig) Validate() error {
	if c.TopicARN == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrMissingEnv
	}
	if !strings.HasPrefix(c.TopicARN, "arn:") {
		return fmt.Errorf("topic ARN must start with arn: (got %q)", c.TopicARN)
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.CheckPrincipal != "" && !strings.HasPrefix(c.CheckPrincipal, "arn:") {
		return fmt.Errorf("principal ARN must start with arn: (got %q)", c.CheckPrincipal)
	}
	return nil
}

// DatabaseConfig describes a PostgreSQL connection. URL wins over the
// individual fields when set.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Validate requires either a URL or a database name or password.
func (c *DatabaseConfig) Validate() error {
	if c.URL != "" {
		return nil
	}
	if c.Database == "" && c.Password == "" {
		return fmt.Errorf("either url or dbname and pwd must be set (dbname=%q)", c.Database)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}

// DSN renders the connection string handed to the driver.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	parts := []string{
		"dbname=" + quoteDSN(c.Database),
		"user=" + quoteDSN(c.User),
		"host=" + quoteDSN(c.Host),
		"password=" + quoteDSN(c.Password),
	}
	if c.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSN(c.SSLMode))
	}
	return strings.Join(parts, " ")
}

// Redacted is DSN with the password masked, for logs.
func (c *DatabaseConfig) Redacted() string {
	masked := *c
	if masked.URL != "" {
		return "DATABASE_URL"
	}
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.DSN()
}

// LoadFromEnv applies DATABASE_URL when present.
func (c *DatabaseConfig) LoadFromEnv(lookup LookupFunc) {
	c.URL = getEnv(lookup, "DATABASE_URL", c.URL)
}

// quoteDSN single-quotes a keyword/value connection parameter.
func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// LoadConfig holds the settings of a readings-load run.
type LoadConfig struct {
	TableName       string        // Target PostgreSQL table
	Kind            reading.Kind  // Layout of the table: data or temphum
	Sources         []string      // s3://bucket/key objects holding JSON lines
	Region          string        // AWS region
	ResumeURI       string        // Checkpoint location (s3:// or file://)
	ArchiveTable    string        // Optional DynamoDB table mirroring the rows
	ReportURI       string        // Optional s3:// destination for the final report
	NotifyTopic     string        // Optional SNS topic told about the finished load
	MaxWorkers      int           // Concurrent source objects
	BatchSize       int           // Rows per write
	CreateTable     bool          // Create the table when it does not exist
	DryRun          bool          // Decode and count without writing
	ShutdownTimeout time.Duration // Grace period for in-flight writes
}

// Validate checks a load configuration.
func (c *LoadConfig) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if c.Kind != reading.KindData && c.Kind != reading.KindTempHum {
		return fmt.Errorf("kind must be data or temphum")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for _, src := range c.Sources {
		if _, _, err := aws.ParseS3URI(src); err != nil {
			return fmt.Errorf("invalid source: %w", err)
		}
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.ResumeURI != "" && !strings.HasPrefix(c.ResumeURI, "s3://") && !strings.HasPrefix(c.ResumeURI, "file://") {
		return fmt.Errorf("resume URI must start with s3:// or file://")
	}
	if c.ReportURI != "" && !strings.HasPrefix(c.ReportURI, "s3://") {
		return fmt.Errorf("report URI must start with s3://")
	}
	if c.NotifyTopic != "" && !strings.HasPrefix(c.NotifyTopic, "arn:") {
		return fmt.Errorf("notify topic must be an ARN")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("batch size must be between 1 and 1000")
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second")
	}
	return nil
}

// ProbeConfig holds the settings of a smoke-test run.
type ProbeConfig struct {
	BaseURL      string
	Remote       bool // include the public endpoints
	Timeout      time.Duration
	MaxRedirects int
}

// LoadFromEnv derives a localhost base URL from PORT when none is set.
func (c *ProbeConfig) LoadFromEnv(lookup LookupFunc) {
	if c.BaseURL != "" {
		return
	}
	if port := getEnv(lookup, "PORT", ""); port != "" {
		c.BaseURL = "http://localhost:" + port
	}
}

// Validate checks a probe configuration.
func (c *ProbeConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required (set --base-url or PORT)")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must use http or https")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must not be negative")
	}
	return nil
}

// Environ is os.LookupEnv, for callers wiring the real environment.
var Environ LookupFunc = os.LookupEnv
