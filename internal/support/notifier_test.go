package support

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	published []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, params)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestPublishSupportRequest(t *testing.T) {
	f := &fakeSNS{}
	n := NewNotifier(f, "arn:aws:sns:us-east-1:123456789012:kora-support")

	err := n.PublishSupportRequest(context.Background(), SupportRequest{
		Shop:    "foo.myshopify.com",
		Email:   "owner@example.com",
		Subject: "Billing question",
		Message: "Why was I charged twice?",
	})
	require.NoError(t, err)
	require.Len(t, f.published, 1)

	p := f.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:kora-support", aws.ToString(p.TopicArn))
	assert.Equal(t, "[support] foo.myshopify.com: Billing question", aws.ToString(p.Subject))
	assert.Contains(t, aws.ToString(p.Message), "owner@example.com")
	assert.Equal(t, "support_request", aws.ToString(p.MessageAttributes["kind"].StringValue))
}

func TestPublishUninstall(t *testing.T) {
	f := &fakeSNS{}
	n := NewNotifier(f, "arn:aws:sns:us-east-1:123456789012:kora-support")

	require.NoError(t, n.PublishUninstall(context.Background(), "foo.myshopify.com", "growth"))
	require.Len(t, f.published, 1)
	assert.Equal(t, "[uninstall] foo.myshopify.com", aws.ToString(f.published[0].Subject))
	assert.Contains(t, aws.ToString(f.published[0].Message), "plan at uninstall: growth")
	assert.Equal(t, "app_uninstalled", aws.ToString(f.published[0].MessageAttributes["kind"].StringValue))
}

func TestNotifierDisabledWithoutTopic(t *testing.T) {
	f := &fakeSNS{}
	n := NewNotifier(f, "")
	require.NoError(t, n.PublishUninstall(context.Background(), "foo.myshopify.com", ""))
	assert.Empty(t, f.published)
}
