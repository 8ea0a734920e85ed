// Package codeforces implements the Codeforces public API client.
// Only the two read-only methods the tracker needs are covered:
// user.rating (rating history) and user.status (submissions).
package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public Codeforces API root.
const DefaultBaseURL = "https://codeforces.com/api"

// ClientConfig contains configuration for the Codeforces API client.
type ClientConfig struct {
	// BaseURL is the API root, without trailing slash
	BaseURL string

	// PacingDelay is slept before every call
	PacingDelay time.Duration

	// RatingTimeout bounds a user.rating call
	RatingTimeout time.Duration

	// SubmissionsTimeout bounds a user.status call (larger payloads)
	SubmissionsTimeout time.Duration

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:            DefaultBaseURL,
		PacingDelay:        time.Second,
		RatingTimeout:      10 * time.Second,
		SubmissionsTimeout: 15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Codeforces API client. It never retries: a failed call is
// returned to the caller as is.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	pacer      *Pacer
	mapper     *Mapper
}

// NewClient creates a new Codeforces API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		// Per-call timeouts come from the request context.
		httpClient = &http.Client{}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "codeforces"),
		pacer:      NewPacer(config.PacingDelay),
		mapper:     NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// API OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchRatingHistory returns the handle's rating changes in API order.
func (c *Client) FetchRatingHistory(ctx context.Context, handle string) ([]student.Contest, error) {
	const op = "FetchRatingHistory"

	params := url.Values{"handle": {handle}}

	var resp APIResponse[[]RatingChangeDTO]
	if apiErr := c.call(ctx, "user.rating", handle, params, c.config.RatingTimeout, &resp); apiErr != nil {
		apiErr.Message = ratingMessage(apiErr)
		return nil, domainError(op, apiErr)
	}

	return c.mapper.Contests(resp.Result), nil
}

// FetchSubmissions returns up to count submissions starting at the 1-based
// index from, newest first as the API orders them.
func (c *Client) FetchSubmissions(ctx context.Context, handle string, from, count int) ([]student.Submission, error) {
	const op = "FetchSubmissions"

	params := url.Values{
		"handle": {handle},
		"from":   {strconv.Itoa(from)},
		"count":  {strconv.Itoa(count)},
	}

	var resp APIResponse[[]SubmissionDTO]
	if apiErr := c.call(ctx, "user.status", handle, params, c.config.SubmissionsTimeout, &resp); apiErr != nil {
		apiErr.Message = submissionsMessage(apiErr)
		return nil, domainError(op, apiErr)
	}

	return c.mapper.Submissions(resp.Result), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

func ratingMessage(e *APIError) string {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return "User not found or has no rating"
	case e.StatusCode == http.StatusOK && e.Comment != "":
		return "CF API Error: " + e.Comment
	default:
		return "Failed to fetch rating: " + e.cause()
	}
}

func submissionsMessage(e *APIError) string {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return "User not found"
	case e.StatusCode == http.StatusOK && e.Comment != "":
		return "CF API Error: " + e.Comment
	default:
		return "Failed to fetch submissions: " + e.cause()
	}
}

// cause describes transport and HTTP failures. A comment in the body of a
// non-200 response is not surfaced to users.
func (e *APIError) cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// envelope is implemented by APIResponse[T].
type envelope interface {
	status() (string, string)
}

func (r *APIResponse[T]) status() (string, string) { return r.Status, r.Comment }

// call paces, performs one GET and decodes the envelope into result.
// Any failure comes back as *APIError with Message left empty.
func (c *Client) call(ctx context.Context, method, handle string, params url.Values, timeout time.Duration, result envelope) *APIError {
	var apiErr *APIError

	err := c.pacer.Do(ctx, func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		apiErr = c.doRequest(ctx, method, handle, params, result)
		return nil
	})
	if err != nil {
		// Context ended while waiting for the pacer.
		return &APIError{Method: method, Handle: handle, Err: err}
	}

	return apiErr
}

func (c *Client) doRequest(ctx context.Context, method, handle string, params url.Values, result envelope) *APIError {
	fullURL := c.config.BaseURL + "/" + method + "?" + params.Encode()
	fail := func(status int, comment string, err error) *APIError {
		return &APIError{Method: method, Handle: handle, StatusCode: status, Comment: comment, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fail(0, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(0, "", fmt.Errorf("timeout after %s", time.Since(start).Round(time.Millisecond)))
		}
		return fail(0, "", fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("codeforces api request",
		"method", method,
		"handle", handle,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	decodeErr := json.Unmarshal(body, result)
	status, comment := result.status()

	if resp.StatusCode != http.StatusOK {
		return fail(resp.StatusCode, comment, nil)
	}
	if decodeErr != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("unmarshal response: %w", decodeErr))
	}
	if status != StatusOK {
		if comment == "" {
			comment = "status " + status
		}
		return fail(resp.StatusCode, comment, nil)
	}

	return nil
}
