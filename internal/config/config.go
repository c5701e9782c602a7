// Package config loads flat environment variables into typed accessors,
// following the same convention the heuristic registry uses for its own
// tunables.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by MEMCORE_ENV (or .env by default),
// then a .secret sidecar if present. Missing files are not an error —
// a deployment may supply everything via real environment variables.
func Load() error {
	envFile := os.Getenv("MEMCORE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")
	return nil
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// DomainDatabaseURL points at the read-only replica/role the domain-DB
// executor queries; falls back to DatabaseURL when the deployment uses
// one instance for both.
func DomainDatabaseURL() string {
	if u := os.Getenv("DOMAIN_DATABASE_URL"); u != "" {
		return u
	}
	return DatabaseURL()
}

func OpenAIAPIKey() string    { return os.Getenv("OPENAI_API_KEY") }
func AnthropicAPIKey() string { return os.Getenv("ANTHROPIC_API_KEY") }

// LLMProvider: openai, anthropic, or mock. Defaults to mock so the
// module runs without credentials until explicitly configured.
func LLMProvider() string {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		return p
	}
	return "mock"
}

// EmbeddingProvider: openai or mock.
func EmbeddingProvider() string {
	if p := os.Getenv("EMBEDDING_PROVIDER"); p != "" {
		return p
	}
	return "mock"
}

func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

func EmbeddingAPIKey() string {
	if EmbeddingProvider() == "mock" {
		return ""
	}
	return OpenAIAPIKey()
}

// EmbeddingDimension is the fixed vector width every pgvector column in
// the schema is declared with. text-embedding-3-small natively produces
// 1536; the mock provider is configured to match so swapping providers
// never requires a schema migration.
func EmbeddingDimension() int {
	if raw := os.Getenv("EMBEDDING_DIMENSION"); raw != "" {
		if d, err := strconv.Atoi(raw); err == nil && d > 0 {
			return d
		}
	}
	return 1536
}

func LogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}
