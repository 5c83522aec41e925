package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClientImpl forwards to an SDK SNS client.
type SNSClientImpl struct {
	client *sns.Client
}

// NewSNSClient wraps an SDK SNS client.
func NewSNSClient(client *sns.Client) *SNSClientImpl {
	return &SNSClientImpl{client: client}
}

// Publish sends one message to a topic.
func (c *SNSClientImpl) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return c.client.Publish(ctx, params, optFns...)
}

// S3ClientImpl forwards to an SDK S3 client.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client wraps an SDK S3 client.
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

func (c *S3ClientImpl) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.client.GetObject(ctx, params, optFns...)
}

func (c *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.client.PutObject(ctx, params, optFns...)
}

// IAMClientImpl forwards to an SDK IAM client.
type IAMClientImpl struct {
	client *iam.Client
}

// NewIAMClient wraps an SDK IAM client.
func NewIAMClient(client *iam.Client) *IAMClientImpl {
	return &IAMClientImpl{client: client}
}

// SimulatePrincipalPolicy evaluates the policies attached to a principal.
func (c *IAMClientImpl) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	return c.client.SimulatePrincipalPolicy(ctx, params, optFns...)
}

// DynamoDBClientImpl forwards to an SDK DynamoDB client.
type DynamoDBClientImpl struct {
	client *dynamodb.Client
}

// NewDynamoDBClient wraps an SDK DynamoDB client.
func NewDynamoDBClient(client *dynamodb.Client) *DynamoDBClientImpl {
	return &DynamoDBClientImpl{client: client}
}

// BatchWriteItem writes up to 25 put or delete requests.
func (c *DynamoDBClientImpl) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return c.client.BatchWriteItem(ctx, params, optFns...)
}
