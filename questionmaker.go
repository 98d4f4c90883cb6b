package quizstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a model conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator is the LLM backend: one call in, raw text out
type TextGenerator interface {
	GenerateText(ctx context.Context, messages []Message) (string, error)
}

// OpenAIGenerator talks to any OpenAI-compatible chat completion API
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator; an empty baseURL uses the public API
func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// GenerateText sends the conversation and returns the first choice's content
func (g *OpenAIGenerator) GenerateText(ctx context.Context, messages []Message) (string, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    chat,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	VerboseLog("Received response from %s with %d choices", g.model, len(resp.Choices))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", g.model)
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiGenerator talks to the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateText maps system messages to the system instruction, earlier turns to the
// chat history and sends the last user turn.
func (g *GeminiGenerator) GenerateText(ctx context.Context, messages []Message) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0.7)

	var system []genai.Part
	var turns []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, genai.Text(msg.Content))
			continue
		}
		turns = append(turns, msg)
	}
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(turns) == 0 {
		return "", errors.New("gemini: no user message")
	}

	cs := m.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("no response from %s", g.model)
	}
	return text, nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// LoggingGenerator records every request and response in an LLM transcript
type LoggingGenerator struct {
	Next   TextGenerator
	Logger *LLMLogger
	Module string
}

func (g *LoggingGenerator) GenerateText(ctx context.Context, messages []Message) (string, error) {
	if g.Logger != nil {
		g.Logger.LogLLMRequest(g.Module, formatMessages(messages))
	}

	text, err := g.Next.GenerateText(ctx, messages)

	if g.Logger != nil {
		if err != nil {
			g.Logger.Logf("LLM ERROR (%s): %v\n", g.Module, err)
		} else {
			g.Logger.LogLLMResponse(g.Module, text)
		}
	}
	return text, err
}

func formatMessages(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s]\n%s\n", m.Role, m.Content))
	}
	return sb.String()
}
