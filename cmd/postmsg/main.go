// Command postmsg publishes a message to the SNS topic named by ARN, using
// the static credentials in ACCESS_KEY and SECRET_KEY.
//
//	postmsg [--region us-west-1] [--check-principal arn] <subject> <message>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/logging"
	"github.com/gurre/cloudlab/notify"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], config.Environ, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClients builds the SNS and IAM clients from the loaded AWS config.
var newClients = func(cfg sdkaws.Config) (aws.SNSClient, aws.IAMClient) {
	return aws.NewSNSClient(sns.NewFromConfig(cfg)), aws.NewIAMClient(iam.NewFromConfig(cfg))
}

func run(args []string, lookup config.LookupFunc, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("postmsg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	region := fs.String("region", config.DefaultRegion, "AWS region of the topic")
	principal := fs.String("check-principal", "", "Principal ARN to check for sns:Publish before sending")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall request timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: postmsg [flags] <subject> <message>\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected a subject and a message, got %d arguments", fs.NArg())
	}
	subject, message := fs.Arg(0), fs.Arg(1)

	cfg := &config.PublishConfig{Region: *region, CheckPrincipal: *principal}
	if err := cfg.LoadPublishEnv(lookup); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.FromEnv("postmsg")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	snsClient, iamClient := newClients(awsCfg)
	if cfg.CheckPrincipal != "" {
		checker := notify.NewPermissionChecker(iamClient)
		if err := checker.CanPublish(ctx, cfg.CheckPrincipal, cfg.TopicARN); err != nil {
			return err
		}
		log.Info("publish permitted", zap.String("principal", cfg.CheckPrincipal))
	}

	publisher := notify.NewPublisher(snsClient, cfg.TopicARN, log)
	res, err := publisher.Post(ctx, subject, message)
	if err != nil {
		var pe *notify.PublishError
		if errors.As(err, &pe) && pe.StatusCode != 0 {
			fmt.Fprintf(stdout, "Non-2xx HTTP status code: %d\n", pe.StatusCode)
		}
		return err
	}

	fmt.Fprintf(stdout, "Message published: %s\n", res.MessageID)
	if res.StatusCode != 0 {
		fmt.Fprintf(stdout, "HTTP status: %d, request id: %s\n", res.StatusCode, res.RequestID)
	}
	return nil
}
