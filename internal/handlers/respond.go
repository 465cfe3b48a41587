package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"korawallet/internal/store"
)

// Store interfaces are satisfied by internal/store; handlers depend on
// the operations only so tests can swap in-memory fakes.

type ShopStore interface {
	GetByDomain(ctx context.Context, domain string) (*store.ShopRecord, error)
	Put(ctx context.Context, rec *store.ShopRecord) error
	UpdatePlan(ctx context.Context, domain, plan, chargeID, subscriptionGID string) error
	Delete(ctx context.Context, domain string) error
}

type StateStore interface {
	NewState(ctx context.Context, shop string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}

type DedupeStore interface {
	Claim(ctx context.Context, webhookID, shop, topic string) (bool, error)
}

type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}

func redirect(location string) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 302,
		Headers: map[string]string{
			"location": location,
		},
	}, nil
}

func redirectWithCookie(location, cookie string) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 302,
		Headers: map[string]string{
			"location": location,
		},
		Cookies: []string{cookie},
	}, nil
}

// rawBody returns the exact request body bytes. API Gateway base64-encodes
// binary payloads; signature checks must run over the decoded original.
func rawBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}
