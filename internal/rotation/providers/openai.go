package providers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OpenAIProvider is a reachability-only provider (spec §4.5, §9 "Open
// questions"): OpenAI's public API does not expose programmatic key
// creation, so Rotate verifies the current key and then fails fast with
// a directive message rather than guessing at an upstream that doesn't
// exist.
type OpenAIProvider struct {
	BaseURL string
	Client  *http.Client // overridable in tests; nil builds a bearer-auth client per call
}

func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{BaseURL: "https://api.openai.com/v1/models"}
}

func (p *OpenAIProvider) Tag() string         { return "openai" }
func (p *OpenAIProvider) DisplayName() string { return "OpenAI API key" }

// ValidateConfig requires the name of the vault secret holding the key
// (spec §4.5: "configured with the secret name that holds the API key").
func (p *OpenAIProvider) ValidateConfig(config Config) bool {
	return config["api_key_secret"] != ""
}

func (p *OpenAIProvider) client(apiKey string) *http.Client {
	if p.Client != nil {
		return p.Client
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	return oauth2.NewClient(context.Background(), src)
}

func (p *OpenAIProvider) verify(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client(apiKey).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Rotate verifies the key works, then always fails: see package doc.
func (p *OpenAIProvider) Rotate(ctx context.Context, _ Config, currentValue string, _ SecretResolver) (string, error) {
	if err := p.verify(ctx, currentValue); err != nil {
		return "", wrapf(p.Tag(), err, "current key failed verification against the models endpoint")
	}
	return "", errf(p.Tag(), "OpenAI has no programmatic key-creation API; rotate the key in the OpenAI dashboard and store it with the custom provider")
}

// TestRotate is a pure reachability check.
func (p *OpenAIProvider) TestRotate(ctx context.Context, _ Config, currentValue string, _ SecretResolver) bool {
	return p.verify(ctx, currentValue) == nil
}
