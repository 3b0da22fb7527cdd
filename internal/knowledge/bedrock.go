package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"kbbot/internal/domain"
)

// BedrockClient is the subset of the Bedrock runtime API used here.
type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockAnswerer retrieves chunks from the knowledge base and asks a Claude
// model on Bedrock to phrase an answer from them.
type BedrockAnswerer struct {
	engine    *Engine
	client    BedrockClient
	modelID   string
	maxTokens int
	logger    *slog.Logger
}

var _ domain.Answerer = (*BedrockAnswerer)(nil)

type BedrockConfig struct {
	Engine    *Engine
	Client    BedrockClient
	ModelID   string
	MaxTokens int
	Logger    *slog.Logger
}

func NewBedrockAnswerer(cfg BedrockConfig) *BedrockAnswerer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BedrockAnswerer{
		engine:    cfg.Engine,
		client:    cfg.Client,
		modelID:   cfg.ModelID,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Answer skips the model call when retrieval finds nothing.
func (b *BedrockAnswerer) Answer(ctx context.Context, text string) (string, error) {
	hits, err := b.engine.Search(ctx, text, 0)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(hits) == 0 {
		return b.engine.NoAnswer(), nil
	}

	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        b.maxTokens,
		"temperature":       0.0,
		"system":            systemPrompt,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": buildPrompt(BuildContext(hits), text)},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock InvokeModel: %w", err)
	}

	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return "", fmt.Errorf("bedrock response unmarshal: %w", err)
	}

	var sb strings.Builder
	for _, c := range raw.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("bedrock returned no text")
	}
	b.logger.Debug("bedrock answer", "model", b.modelID, "sources", len(hits), "answer_len", len(answer))
	return answer, nil
}

const systemPrompt = `You answer questions from employees in a chat app.
Use only the numbered sources you are given. If they do not contain the answer, say you don't know.
Reply in plain text suitable for Slack, in at most a few sentences.`

func buildPrompt(sources, question string) string {
	return fmt.Sprintf("SOURCES:\n%s\n\nQUESTION:\n%s", sources, question)
}
