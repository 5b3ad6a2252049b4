package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-notifications-client/internal/redact"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/retry"
)

const (
	pathUnread  = "/api/notifications/unread"
	pathList    = "/api/notifications"
	pathAckRead = "/api/notifications/read"

	defaultTimeout = 15 * time.Second
)

var (
	ErrMissingCredential = errors.New("api: no credential available")
	ErrUnsuccessful      = errors.New("api: request reported success=false")
)

// HTTPError describes a non-2xx response.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Options configure the REST client.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials credentials.Provider
	// MaxRetries applies to idempotent reads only; acknowledgements are
	// sent once.
	MaxRetries int
	Backoff    retry.Backoff
	Logger     logger.Logger
}

// Client talks to the notification service REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credentials.Provider
	maxRetries int
	backoff    retry.Backoff
	logger     logger.Logger
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Credentials == nil {
		opts.Credentials = credentials.None{}
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultBackoff()
	}
	return &Client{
		baseURL:    base,
		httpClient: opts.HTTPClient,
		creds:      opts.Credentials,
		maxRetries: max(opts.MaxRetries, 0),
		backoff:    opts.Backoff,
		logger:     logger.OrNop(opts.Logger).With(logger.F("component", "api")),
	}, nil
}

// UnreadCount fetches the server's unread total.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var data struct {
		Total int `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, pathUnread, nil, &data, c.maxRetries); err != nil {
		return 0, err
	}
	return max(data.Total, 0), nil
}

// ListRecent fetches the most recent notifications, newest first, with
// their server-computed read flags.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	path := pathList
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var items []domain.Notification
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &items, c.maxRetries); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// AckRequest is the body of an acknowledgement.
type AckRequest struct {
	ChannelID          string `json:"channelId"`
	UpToNotificationID string `json:"upToNotificationId"`
}

// AckResult carries the server's unread count when the response included one.
type AckResult struct {
	UnreadCount *int
}

// Acknowledge advances the read cursor of channelID up to and including
// upToID.
func (c *Client) Acknowledge(ctx context.Context, channelID, upToID string) (AckResult, error) {
	var data struct {
		UnreadCount *int `json:"unreadCount"`
	}
	body := AckRequest{ChannelID: channelID, UpToNotificationID: upToID}
	if err := c.doJSON(ctx, http.MethodPost, pathAckRead, body, &data, 0); err != nil {
		return AckResult{}, err
	}
	if data.UnreadCount != nil && *data.UnreadCount < 0 {
		zero := 0
		data.UnreadCount = &zero
	}
	return AckResult{UnreadCount: data.UnreadCount}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any, retries int) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	if strings.TrimSpace(token) == "" {
		return ErrMissingCredential
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		correlationID := uuid.NewString()
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-Id", correlationID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < retries {
				c.logger.Debug("request failed, retrying", logger.F("path", requestPath), logger.F("attempt", attempt+1), logger.Err(err))
				if waitErr := waitWithContext(ctx, c.backoff.Next(attempt+1)); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return decodeEnvelope(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < retries {
			delay := retryAfter(resp.Header.Get("Retry-After"), c.backoff.Next(attempt+1))
			c.logger.Debug("retrying request",
				logger.F("path", requestPath),
				logger.F("status", resp.StatusCode),
				logger.F("correlation_id", correlationID),
			)
			if waitErr := waitWithContext(ctx, delay); waitErr != nil {
				return waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Warn("credential rejected",
				logger.F("path", requestPath),
				logger.F("status", resp.StatusCode),
				logger.F("token", redact.Token(token)),
				logger.F("correlation_id", correlationID),
			)
		}
		return httpError(resp.StatusCode, payload)
	}
}

func decodeEnvelope(payload []byte, out any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: empty body", ErrUnsuccessful)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	if !env.Success {
		if env.Error != nil && env.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrUnsuccessful, env.Error.Message)
		}
		return ErrUnsuccessful
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("api: decode data: %w", err)
	}
	return nil
}

func httpError(status int, payload []byte) *HTTPError {
	var flat errorBody
	_ = json.Unmarshal(payload, &flat)
	if flat.Code == "" && flat.Message == "" {
		var env envelope
		if json.Unmarshal(payload, &env) == nil && env.Error != nil {
			flat = *env.Error
		}
	}
	if flat.Message == "" {
		flat.Message = http.StatusText(status)
	}
	return &HTTPError{StatusCode: status, Code: flat.Code, Message: flat.Message}
}

func retryAfter(header string, fallback time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
