package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClient records published messages.
type SNSClient struct {
	mu        sync.Mutex
	Published []sns.PublishInput
}

// NewSNSClient creates a mock SNS client.
func NewSNSClient() *SNSClient {
	return &SNSClient{}
}

// Publish records the input and returns a sequential message id.
func (m *SNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, *params)
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("msg-%d", len(m.Published)))}, nil
}
