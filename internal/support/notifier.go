package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier publishes merchant support requests and operational alerts to
// an SNS topic the ops team subscribes to. An empty topic ARN disables
// publishing so local and test environments need no AWS wiring.
type Notifier struct {
	Client   SNSClient
	TopicARN string
}

func NewNotifier(client SNSClient, topicARN string) *Notifier {
	return &Notifier{Client: client, TopicARN: topicARN}
}

type SupportRequest struct {
	Shop    string `json:"shop" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (n *Notifier) enabled() bool {
	return n != nil && n.Client != nil && strings.TrimSpace(n.TopicARN) != ""
}

// PublishSupportRequest forwards a merchant support form submission.
func (n *Notifier) PublishSupportRequest(ctx context.Context, req SupportRequest) error {
	if !n.enabled() {
		return nil
	}
	body := fmt.Sprintf("Shop: %s\nFrom: %s\n\n%s", req.Shop, req.Email, req.Message)
	_, err := n.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.TopicARN),
		Subject:  aws.String(fmt.Sprintf("[support] %s: %s", req.Shop, req.Subject)),
		Message:  aws.String(body),
		MessageAttributes: snsAttrs(map[string]string{
			"kind": "support_request",
			"shop": req.Shop,
		}),
	})
	if err != nil {
		return fmt.Errorf("sns Publish: %w", err)
	}
	return nil
}

// PublishUninstall alerts ops that a shop removed the app and its record
// was purged.
func (n *Notifier) PublishUninstall(ctx context.Context, shop, plan string) error {
	if !n.enabled() {
		return nil
	}
	if plan == "" {
		plan = "none"
	}
	_, err := n.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.TopicARN),
		Subject:  aws.String(fmt.Sprintf("[uninstall] %s", shop)),
		Message:  aws.String(fmt.Sprintf("Shop %s uninstalled the app (plan at uninstall: %s).", shop, plan)),
		MessageAttributes: snsAttrs(map[string]string{
			"kind": "app_uninstalled",
			"shop": shop,
		}),
	})
	if err != nil {
		return fmt.Errorf("sns Publish: %w", err)
	}
	return nil
}

func snsAttrs(kv map[string]string) map[string]snstypes.MessageAttributeValue {
	out := make(map[string]snstypes.MessageAttributeValue, len(kv))
	for k, v := range kv {
		out[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return out
}
