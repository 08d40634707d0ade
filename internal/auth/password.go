// Package auth obtains session tokens from the Power Policy API.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
)

// ErrInvalidCredentials is returned when the server rejects the username or
// password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Flow exchanges user credentials for a bearer token.
type Flow interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// PasswordFlow performs the OAuth2 password grant against /auth/token.
type PasswordFlow struct {
	BaseURL string
	HTTP    *http.Client
}

func NewPasswordFlow(baseURL string, timeout time.Duration) *PasswordFlow {
	hc := cleanhttp.DefaultClient()
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &PasswordFlow{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (f *PasswordFlow) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", errors.New("username and password are required")
	}

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"grant_type": {"password"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "build login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	hc := f.HTTP
	if hc == nil {
		hc = cleanhttp.DefaultClient()
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "login request")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read login response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if detail := detailOf(body); detail != "" {
			return "", errors.Wrap(ErrInvalidCredentials, detail)
		}
		return "", ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if detail := detailOf(body); detail != "" {
			return "", errors.Errorf("login failed: %s", detail)
		}
		return "", errors.Errorf("login failed with status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", errors.Wrap(err, "decode login response")
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("login response carried no access token")
	}
	return tok.AccessToken, nil
}

func detailOf(body []byte) string {
	var eb struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if s, ok := eb.Detail.(string); ok {
		return s
	}
	return ""
}
