// Package gmail sends mail through the Gmail REST API using an OAuth
// refresh token. Access tokens are minted on demand and cached for the
// life of the client; an authorization failure during a send triggers
// one token refresh and one retry.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://gmail.googleapis.com"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
)

// Client sends email through the Gmail API.
type Client interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// Credentials holds the OAuth client and refresh token for the sending
// account.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// SendResult identifies the accepted message.
type SendResult struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// APIError is a structured Gmail API error.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail: api error %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

// IsAuthError reports whether err is an authorization failure that a
// token refresh could cure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTokenURL overrides the default OAuth token endpoint.
func WithTokenURL(url string) Option {
	return func(c *httpClient) {
		c.tokenURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	creds    Credentials
	baseURL  string
	tokenURL string
	http     *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewClient creates a Gmail API client.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:    creds,
		baseURL:  defaultBaseURL,
		tokenURL: defaultTokenURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if len(msg.To) == 0 {
		return nil, eris.New("gmail: message has no recipients")
	}

	raw := encodeRFC2822(msg)

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.send(ctx, token, raw)
	if err == nil {
		return res, nil
	}
	if !IsAuthError(err) {
		return nil, err
	}

	zap.L().Warn("gmail send unauthorized, refreshing token", zap.Error(err))
	token, err = c.refreshToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, token, raw)
}

// token returns the cached access token, minting one if none is held.
func (c *httpClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" {
		return c.accessToken, nil
	}
	return c.refreshLocked(ctx)
}

// refreshToken discards any cached access token and mints a fresh one.
func (c *httpClient) refreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *httpClient) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"refresh_token": {c.creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "gmail: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "gmail: request token")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "gmail: read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("gmail: token refresh status %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "gmail: decode token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("gmail: token response missing access_token")
	}

	c.accessToken = tok.AccessToken
	return tok.AccessToken, nil
}

type sendRequest struct {
	Raw string `json:"raw"`
}

type sendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

func (c *httpClient) send(ctx context.Context, token, raw string) (*SendResult, error) {
	body, err := json.Marshal(sendRequest{Raw: raw})
	if err != nil {
		return nil, eris.Wrap(err, "gmail: marshal send request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/gmail/v1/users/me/messages/send", strings.NewReader(string(body)))
	if err != nil {
		return nil, eris.Wrap(err, "gmail: create send request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: read send response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, respBody)
	}

	var sr sendResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, eris.Wrap(err, "gmail: unmarshal send response")
	}

	return &SendResult{MessageID: sr.ID, ThreadID: sr.ThreadID}, nil
}

// apiError decodes Gmail's error envelope, falling back to the raw body.
func apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// encodeRFC2822 renders msg as an RFC 2822 message and returns the
// base64url form the Gmail API expects.
func encodeRFC2822(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
