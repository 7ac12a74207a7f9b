package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/anthropics/triad/internal/domain"
)

// providerKeyVars maps a provider name to the environment variables that may
// carry its API key, in lookup order. A nil entry means the provider needs no
// key (local runtimes).
var providerKeyVars = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
	"ollama":    nil,
}

// LoadEnv reads credentials from a dotenv file into the process environment.
// A missing file is not an error; variables already set in the environment
// win over file entries.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// APIKey returns the API key for a provider from the environment. Providers
// that need no key return an empty string and no error.
func APIKey(provider string) (string, error) {
	vars, ok := providerKeyVars[provider]
	if !ok {
		return "", domain.NewAgentError(domain.ErrConfigInvalid.Code,
			fmt.Sprintf("unknown provider %q", provider))
	}
	if len(vars) == 0 {
		return "", nil
	}
	for _, v := range vars {
		if key := os.Getenv(v); key != "" {
			return key, nil
		}
	}
	return "", domain.NewAgentError(domain.ErrMissingCredentials.Code,
		fmt.Sprintf("set %s to use the %s provider", vars[0], provider))
}
