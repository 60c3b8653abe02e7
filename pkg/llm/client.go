package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/newsdesk/sentinel/pkg/config"
)

// Client talks to an OpenAI-compatible endpoint and provides the optional
// text-enhancement and translation capabilities. Both are best-effort
// collaborators: callers treat failures as skip conditions, never as fatal.
type Client struct {
	client *openai.Client
	config config.AIConfig
}

// NewClient creates a new LLM client
func NewClient(cfg config.AIConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

const enhanceSystemPrompt = `You are an editor improving a news article fragment.
The input is an HTML fragment. Improve flow, fix grammar and awkward phrasing.
Rules:
- Keep every HTML tag, attribute and class exactly as given; only edit text.
- Do not add facts, opinions or new sections.
- Return only the HTML fragment, without markdown code fences.`

const translateSystemPrompt = `You are a professional news translator.
Translate the given text into %s. Preserve any HTML tags unchanged.
Return only the translation, nothing else.`

// languageNames maps config language codes to names used in prompts
var languageNames = map[string]string{
	"km": "Khmer",
	"en": "English",
	"th": "Thai",
	"vi": "Vietnamese",
}

// Enhance rewrites the HTML fragment for readability, preserving markup
func (c *Client) Enhance(ctx context.Context, htmlContent string) (string, error) {
	out, err := c.complete(ctx, enhanceSystemPrompt, htmlContent)
	if err != nil {
		return "", fmt.Errorf("enhance request failed: %w", err)
	}
	return stripFences(out), nil
}

// Translate converts text into the target language; empty result is an error
// so callers can fall back to an empty secondary-language field
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	lang, ok := languageNames[targetLang]
	if !ok {
		lang = targetLang
	}

	out, err := c.complete(ctx, fmt.Sprintf(translateSystemPrompt, lang), text)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty translation response")
	}
	return stripFences(out), nil
}

func (c *Client) complete(ctx context.Context, systemMsg, userMsg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from llm")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// stripFences drops markdown code fences some models wrap answers in
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```html")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
