package nexar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshSkew renews the access token this long before it expires.
const refreshSkew = 300 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenSource obtains and caches client-credentials access tokens.
type tokenSource struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or within refreshSkew of expiring.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Add(refreshSkew).Before(ts.expiry) {
		return ts.token, nil
	}

	tok, exp, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.token, ts.expiry = tok, exp
	return tok, nil
}

// Invalidate drops the cached token, e.g. after the API rejected it.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}

func (ts *tokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", time.Time{}, fmt.Errorf("token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, errors.New("token response has no access_token")
	}

	exp, err := tokenExpiry(tr.AccessToken)
	if err != nil {
		if tr.ExpiresIn <= 0 {
			return "", time.Time{}, fmt.Errorf("token expiry: %w", err)
		}
		exp = ts.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tr.AccessToken, exp, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only ever handed back to its issuer.
func tokenExpiry(raw string) (time.Time, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("no exp claim")
	}
	return exp.Time, nil
}
