package providers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// GitHubProvider is a reachability-check provider included for parity
// with the source system (spec §4.5): it validates the current token
// against the user endpoint and otherwise fails fast, directing callers
// to the custom provider for an actual rotation mechanism.
type GitHubProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewGitHubProvider() *GitHubProvider {
	return &GitHubProvider{BaseURL: "https://api.github.com/user"}
}

func (p *GitHubProvider) Tag() string         { return "github" }
func (p *GitHubProvider) DisplayName() string { return "GitHub token" }

// ValidateConfig has no required fields — the token being rotated is the
// secret itself.
func (p *GitHubProvider) ValidateConfig(_ Config) bool { return true }

func (p *GitHubProvider) client(token string) *http.Client {
	if p.Client != nil {
		return p.Client
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
	return oauth2.NewClient(context.Background(), src)
}

func (p *GitHubProvider) verify(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client(token).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Rotate verifies the token, then always fails: GitHub personal access
// tokens have no uniform programmatic rotation surface here.
func (p *GitHubProvider) Rotate(ctx context.Context, _ Config, currentValue string, _ SecretResolver) (string, error) {
	if err := p.verify(ctx, currentValue); err != nil {
		return "", wrapf(p.Tag(), err, "current token failed verification against the user endpoint")
	}
	return "", errf(p.Tag(), "GitHub tokens must be rotated in GitHub settings; store the new value with the custom provider")
}

// TestRotate is a pure reachability check.
func (p *GitHubProvider) TestRotate(ctx context.Context, _ Config, currentValue string, _ SecretResolver) bool {
	return p.verify(ctx, currentValue) == nil
}
