package main

import (
	"bytes"
	"context"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/gurre/cloudlab/aws"
	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/integration/mock"
	"github.com/gurre/cloudlab/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "arn:aws:sns:us-west-1:123456789012:course"

func env(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

var fullEnv = env(map[string]string{"ARN": testTopic, "ACCESS_KEY": "AKIDEXAMPLE", "SECRET_KEY": "secret"})

type denyingIAM struct{}

func (denyingIAM) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	return &iam.SimulatePrincipalPolicyOutput{EvaluationResults: []types.EvaluationResult{{
		EvalActionName: sdkaws.String("sns:Publish"),
		EvalDecision:   types.PolicyEvaluationDecisionTypeImplicitDeny,
	}}}, nil
}

func stubClients(t *testing.T) *mock.SNSClient {
	t.Helper()
	client := mock.NewSNSClient()
	orig := newClients
	newClients = func(sdkaws.Config) (aws.SNSClient, aws.IAMClient) { return client, denyingIAM{} }
	t.Cleanup(func() { newClients = orig })
	return client
}

func TestRunPublishes(t *testing.T) {
	client := stubClients(t)
	var stdout bytes.Buffer

	require.NoError(t, run([]string{"hello", "world"}, fullEnv, &stdout, &bytes.Buffer{}))

	require.Len(t, client.Published, 1)
	in := client.Published[0]
	assert.Equal(t, testTopic, sdkaws.ToString(in.TopicArn))
	assert.Equal(t, "hello", sdkaws.ToString(in.Subject))
	assert.Equal(t, "json", sdkaws.ToString(in.MessageStructure))
	assert.JSONEq(t, `{"default":"world","sms":"world","email":"world"}`, sdkaws.ToString(in.Message))
	assert.Equal(t, "Message published: msg-1\n", stdout.String())
}

func TestRunArguments(t *testing.T) {
	client := stubClients(t)
	var stderr bytes.Buffer

	err := run([]string{"only-subject"}, fullEnv, &bytes.Buffer{}, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a subject and a message, got 1 arguments")
	assert.Contains(t, stderr.String(), "Usage: postmsg [flags] <subject> <message>")
	assert.Empty(t, client.Published)
}

func TestRunMissingEnv(t *testing.T) {
	client := stubClients(t)

	err := run([]string{"hello", "world"}, env(map[string]string{"ARN": testTopic}), &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, config.ErrMissingEnv)
	assert.Empty(t, client.Published)
}

func TestRunPermissionDenied(t *testing.T) {
	client := stubClients(t)

	err := run([]string{"--check-principal", "arn:aws:iam::123456789012:user/course", "hello", "world"},
		fullEnv, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, notify.ErrPublishDenied)
	assert.Empty(t, client.Published)
}
