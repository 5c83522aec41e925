// Package notify publishes messages to an SNS topic.
//
// Messages are sent with a JSON message structure so that every protocol
// (SMS, email and the default for everything else) receives the same text.
// SMS subscribers ignore the subject.
package notify

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	json "github.com/goccy/go-json"
	"github.com/gurre/cloudlab/aws"
	"go.uber.org/zap"
)

// messageStructureJSON tells SNS the message body is a per-protocol map.
const messageStructureJSON = "json"

// messageBody is the per-protocol message map.
type messageBody struct {
	Default string `json:"default"`
	SMS     string `json:"sms"`
	Email   string `json:"email"`
}

// Result describes an accepted publish.
type Result struct {
	MessageID  string
	RequestID  string
	StatusCode int // 0 when the transport response is unavailable
}

// PublishError is returned when SNS answers with a non-2xx status.
type PublishError struct {
	StatusCode int
	RequestID  string
	Code       string // service error code, e.g. AuthorizationError
	Err        error
}

func (e *PublishError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("publish failed: status %d (%s): %v", e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("publish failed: status %d: %v", e.StatusCode, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher posts messages to one topic.
type Publisher struct {
	client   aws.SNSClient
	topicARN string
	log      *zap.Logger
}

// NewPublisher creates a publisher for topicARN.
func NewPublisher(client aws.SNSClient, topicARN string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, topicARN: topicARN, log: log}
}

// Post publishes message with the given subject. An empty subject is
// omitted from the request.
func (p *Publisher) Post(ctx context.Context, subject, message string) (Result, error) {
	body, err := json.Marshal(messageBody{Default: message, SMS: message, Email: message})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn:         sdkaws.String(p.topicARN),
		Message:          sdkaws.String(string(body)),
		MessageStructure: sdkaws.String(messageStructureJSON),
	}
	if subject != "" {
		input.Subject = sdkaws.String(subject)
	}

	p.log.Debug("publishing", zap.String("topic", p.topicARN), zap.String("subject", subject))
	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return Result{}, classify(err)
	}

	res := Result{MessageID: sdkaws.ToString(out.MessageId)}
	if id, ok := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata); ok {
		res.RequestID = id
	}
	if raw, ok := awsmiddleware.GetRawResponse(out.ResultMetadata).(*smithyhttp.Response); ok && raw != nil && raw.Response != nil {
		res.StatusCode = raw.StatusCode
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return res, &PublishError{
				StatusCode: res.StatusCode,
				RequestID:  res.RequestID,
				Err:        fmt.Errorf("non-2xx response for message %s", res.MessageID),
			}
		}
	}

	p.log.Info("published",
		zap.String("topic", p.topicARN),
		zap.String("message_id", res.MessageID),
		zap.String("request_id", res.RequestID),
	)
	return res, nil
}

// classify turns an SDK error carrying an HTTP response into a
// PublishError; other errors are wrapped unchanged.
func classify(err error) error {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("publish failed: %w", err)
	}
	pe := &PublishError{
		StatusCode: respErr.HTTPStatusCode(),
		RequestID:  respErr.ServiceRequestID(),
		Err:        err,
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
	}
	return pe
}
