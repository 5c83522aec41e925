// Package archive mirrors loaded readings into a DynamoDB table keyed by
// source table (partition key "table") and timestamp (sort key "dt").
package archive

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/reading"
)

// MaxBatchSize is the BatchWriteItem limit.
const MaxBatchSize = 25

// item is the stored form of a reading.
type item struct {
	Table string       `dynamodbav:"table"`
	Time  time.Time    `dynamodbav:"dt"`
	Kind  reading.Kind `dynamodbav:"kind"`
	Meas  *float64     `dynamodbav:"meas,omitempty"`
	Temp  *float64     `dynamodbav:"temp,omitempty"`
	Hum   *float64     `dynamodbav:"hum,omitempty"`
}

// Item converts r into the attribute map written for source table.
func Item(table string, r reading.Reading) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item{
		Table: table,
		Time:  r.Time.UTC(),
		Kind:  r.Kind(),
		Meas:  r.Meas,
		Temp:  r.Temp,
		Hum:   r.Hum,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading at %s: %w", r.Time, err)
	}
	return av, nil
}

// DynamoDBWriter writes readings with BatchWriteItem, retrying with
// exponential backoff.
type DynamoDBWriter struct {
	client      aws.DynamoDBClient
	tableName   string // DynamoDB table
	sourceTable string // PostgreSQL table the readings belong to
	batchSize   int
}

// NewDynamoDBWriter creates a writer for tableName. batchSize is capped at
// MaxBatchSize.
func NewDynamoDBWriter(client aws.DynamoDBClient, tableName, sourceTable string, batchSize int) *DynamoDBWriter {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &DynamoDBWriter{
		client:      client,
		tableName:   tableName,
		sourceTable: sourceTable,
		batchSize:   batchSize,
	}
}

// isThrottlingError reports whether err means DynamoDB is out of capacity.
// These clear by waiting, so they are retried until the context ends.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// backoff is replaced in tests.
var backoff = backoffWait

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func backoffWait(ctx context.Context, attempt int) bool {
	base := 100 * time.Millisecond
	maxDelay := 30 * time.Second

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	delay += time.Duration(rand.Int64N(int64(delay)))

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// WriteBatch writes readings in chunks of the writer's batch size.
func (w *DynamoDBWriter) WriteBatch(ctx context.Context, batch []reading.Reading) error {
	for i := 0; i < len(batch); i += w.batchSize {
		end := min(i+w.batchSize, len(batch))

		requests := make([]types.WriteRequest, 0, end-i)
		for _, r := range batch[i:end] {
			av, err := Item(w.sourceTable, r)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}

		if err := w.write(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

// write sends one BatchWriteItem call and resubmits unprocessed items.
// Throttling retries until the context is cancelled; other errors give up
// after maxRetries.
func (w *DynamoDBWriter) write(ctx context.Context, requests []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{w.tableName: requests},
	}

	const maxRetries = 5
	attempt := 0
	for {
		output, err := w.client.BatchWriteItem(ctx, input)
		if err != nil {
			if !isThrottlingError(err) && attempt >= maxRetries {
				return fmt.Errorf("failed to write batch after %d retries: %w", maxRetries, err)
			}
			if !backoff(ctx, attempt) {
				return ctx.Err()
			}
			attempt++
			continue
		}

		if len(output.UnprocessedItems) > 0 {
			input.RequestItems = output.UnprocessedItems
			if !backoff(ctx, attempt) {
				return ctx.Err()
			}
			attempt++
			continue
		}
		return nil
	}
}

// Flush is a no-op; batches are written immediately.
func (w *DynamoDBWriter) Flush(ctx context.Context) error {
	return nil
}
