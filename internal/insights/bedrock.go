package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Engine runs the AI flows against a Claude model on Bedrock.
type Engine struct {
	Client  BedrockClient
	ModelID string
}

func NewEngine(client BedrockClient, modelID string) (*Engine, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("missing bedrock model id")
	}
	return &Engine{Client: client, ModelID: modelID}, nil
}

// invoke sends the prompt using the Anthropic-style Bedrock payload and
// returns the concatenated text content of the response.
func (e *Engine) invoke(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        700,
		"temperature":       0.0,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
				},
			},
		},
	}
	body, _ := json.Marshal(payload)

	out, err := e.Client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock InvokeModel: %w", err)
	}

	// Claude returns { "content":[{"type":"text","text":"..."}], ... }
	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return "", fmt.Errorf("bedrock response unmarshal: %w", err)
	}

	var text string
	for _, c := range raw.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return strings.TrimSpace(text), nil
}

// runJSONFlow invokes the model and decodes the first JSON object of the
// reply into out. The model is instructed to emit JSON only, but replies
// are still occasionally wrapped in prose or fencing.
func (e *Engine) runJSONFlow(ctx context.Context, prompt string, out any) error {
	text, err := e.invoke(ctx, prompt)
	if err != nil {
		return err
	}
	jsonStr := extractFirstJSONObject(text)
	if jsonStr == "" {
		return fmt.Errorf("model did not return JSON object")
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("model JSON parse failed: %w; raw=%s", err, truncate(jsonStr, 800))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractFirstJSONObject finds the first balanced {...} block.
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
