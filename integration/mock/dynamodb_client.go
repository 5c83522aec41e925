package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is an in-memory implementation of aws.DynamoDBClient.
// Items are keyed by their "table" and "dt" attributes.
type DynamoDBClient struct {
	mu            sync.RWMutex
	tableData     map[string]map[string]map[string]types.AttributeValue
	batchWrites   int
	failNextWrite bool
}

// NewDynamoDBClient creates an empty mock DynamoDB client.
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{
		tableData: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// FailNextWrite makes the next BatchWriteItem call throttle.
func (m *DynamoDBClient) FailNextWrite() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextWrite = true
}

func compositeKey(item map[string]types.AttributeValue) string {
	var pk, sk string
	if v, ok := item["table"].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	if v, ok := item["dt"].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return pk + "#" + sk
}

// BatchWriteItem applies put requests.
func (m *DynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNextWrite {
		m.failNextWrite = false
		return nil, &types.ProvisionedThroughputExceededException{}
	}

	for table, requests := range params.RequestItems {
		if m.tableData[table] == nil {
			m.tableData[table] = make(map[string]map[string]types.AttributeValue)
		}
		for _, req := range requests {
			if req.PutRequest == nil {
				return nil, errors.New("mock DynamoDB: only put requests are supported")
			}
			m.tableData[table][compositeKey(req.PutRequest.Item)] = req.PutRequest.Item
		}
	}
	m.batchWrites++
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// ItemCount returns the number of items stored in table.
func (m *DynamoDBClient) ItemCount(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tableData[table])
}

// Item returns the item stored for source table and timestamp dt.
func (m *DynamoDBClient) Item(table, sourceTable, dt string) (map[string]types.AttributeValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.tableData[table][sourceTable+"#"+dt]
	return item, ok
}

// BatchWrites returns the number of successful BatchWriteItem calls.
func (m *DynamoDBClient) BatchWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batchWrites
}
