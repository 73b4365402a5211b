package services

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringServiceName = "evermore"

// envKeyNames maps provider IDs to the conventional environment variables
// consulted when the OS keyring has no entry.
var envKeyNames = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

type KeyringService struct{}

func NewKeyringService() *KeyringService {
	return &KeyringService{}
}

func (s *KeyringService) StoreAPIKey(provider string, apiKey string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(keyringServiceName, provider, apiKey)
}

// GetAPIKey reads the provider key from the OS keyring, falling back to the
// provider's environment variable so headless deployments work without one.
func (s *KeyringService) GetAPIKey(provider string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", errors.New("provider is required")
	}

	key, err := keyring.Get(keyringServiceName, provider)
	if err == nil && key != "" {
		return key, nil
	}

	if envName, ok := envKeyNames[provider]; ok {
		if key := os.Getenv(envName); key != "" {
			return key, nil
		}
	}
	if err != nil {
		return "", err
	}
	return "", errors.New("no API key configured for provider " + provider)
}

func (s *KeyringService) DeleteAPIKey(provider string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	return keyring.Delete(keyringServiceName, provider)
}
