package notify

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/gurre/cloudlab/aws"
)

// publishAction is the IAM action a publish requires.
const publishAction = "sns:Publish"

// ErrPublishDenied is returned when a principal may not publish to a topic.
var ErrPublishDenied = errors.New("publish not allowed")

// PermissionChecker asks IAM whether a principal may publish.
type PermissionChecker struct {
	client aws.IAMClient
}

// NewPermissionChecker creates a checker backed by client.
func NewPermissionChecker(client aws.IAMClient) *PermissionChecker {
	return &PermissionChecker{client: client}
}

// CanPublish simulates sns:Publish on topicARN for principalARN and returns
// ErrPublishDenied unless every evaluation result is allowed.
func (c *PermissionChecker) CanPublish(ctx context.Context, principalARN, topicARN string) error {
	out, err := c.client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: sdkaws.String(principalARN),
		ActionNames:     []string{publishAction},
		ResourceArns:    []string{topicARN},
	})
	if err != nil {
		return fmt.Errorf("failed to simulate policy for %s: %w", principalARN, err)
	}
	if len(out.EvaluationResults) == 0 {
		return fmt.Errorf("%w: no evaluation results for %s", ErrPublishDenied, principalARN)
	}
	for _, r := range out.EvaluationResults {
		if r.EvalDecision != types.PolicyEvaluationDecisionTypeAllowed {
			return fmt.Errorf("%w: %s on %s is %s for %s",
				ErrPublishDenied, sdkaws.ToString(r.EvalActionName), topicARN, r.EvalDecision, principalARN)
		}
	}
	return nil
}
