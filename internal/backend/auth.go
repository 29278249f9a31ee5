package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vbonduro/unlabel/internal/domain"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.token(ctx, "/auth/login", credentials{Email: email, Password: password})
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, email, password, name string) (string, error) {
	return c.token(ctx, "/auth/register", credentials{Email: email, Password: password, Name: name})
}

func (c *Client) token(ctx context.Context, path string, creds credentials) (string, error) {
	body, err := c.postJSON(ctx, path, creds)
	if err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return resp.AccessToken, nil
}

// Profile returns the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	body, err := c.get(ctx, "/profile")
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &u, nil
}
