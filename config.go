package quizstream

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds the settings shared by the binaries
type Config struct {
	Port           string
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	GeminiModel    string
	DatabaseURL    string
	SessionSecret  string
	GenerateURL    string
	LLMLogDir      string
	RequestTimeout time.Duration
	Verbose        bool
}

// LoadConfig reads the configuration from environment variables
func LoadConfig() Config {
	port := getenv("PORT", "8180")
	return Config{
		Port:           port,
		LLMProvider:    strings.ToLower(getenv("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		DatabaseURL:    getenv("DATABASE_URL", "./quiz.db"),
		SessionSecret:  getenv("SESSION_SECRET", "change-me-session-secret"),
		GenerateURL:    getenv("GENERATE_URL", "http://localhost:"+port+"/generate"),
		LLMLogDir:      getenv("LLM_LOG_DIR", "log"),
		RequestTimeout: time.Duration(getenvInt("REQUEST_TIMEOUT", 300)) * time.Second,
		Verbose:        getenvBool("VERBOSE", false),
	}
}

// NewGenerator builds the configured LLM backend. The returned func releases it.
func (c Config) NewGenerator(ctx context.Context) (TextGenerator, func(), error) {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return NewOpenAIGenerator(c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIBaseURL), func() {}, nil
	case ProviderGemini:
		g, err := NewGeminiGenerator(ctx, c.GeminiAPIKey, c.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { g.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
}

func getenv(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(k string, fallback bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
