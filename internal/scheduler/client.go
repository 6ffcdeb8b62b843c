package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// maxAttempts bounds the calls made for one request when the API answers 429.
	maxAttempts = 3
	// maxRetryWait caps how long a Retry-After header can stall a request.
	maxRetryWait = 30 * time.Second
)

// codePartialFailure is the API error code for a run in which some templates failed.
const codePartialFailure = "RECURRING_PARTIAL_FAILURE"

// Instance is a materialized expense as returned by the pipeline API.
type Instance struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	PeriodKey  string    `json:"period_key"`
	Title      string    `json:"title"`
	Amount     int64     `json:"amount"`
	Date       time.Time `json:"date"`
}

// ProcessResult is the outcome of one pipeline process call.
type ProcessResult struct {
	CreatedCount int        `json:"created_count"`
	Created      []Instance `json:"created"`
}

// APIError is a non-200 answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	if e.Details != "" {
		return fmt.Sprintf("unexpected status %d: %s: %s (%s)", e.Status, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("unexpected status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsPartialFailure reports whether err is a run in which some templates failed
// while others were materialized.
func IsPartialFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codePartialFailure
}

// Client talks to the PocketLedger pipeline API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// defaultRetryWait applies to a 429 without a usable Retry-After header.
	defaultRetryWait time.Duration
}

// NewClient creates a new pipeline API client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		httpClient:       httpClient,
		defaultRetryWait: time.Second,
	}
}

// do sends a request to path, retrying up to maxAttempts times while the API
// answers 429. The final response is returned whatever its status.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt == maxAttempts {
			return resp, nil
		}

		wait := c.retryWait(resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryWait reads a Retry-After value given in seconds.
func (c *Client) retryWait(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return c.defaultRetryWait
	}
	return min(time.Duration(secs)*time.Second, maxRetryWait)
}

// ListUsers fetches the ids of users owning at least one recurring template.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/pipeline/recurring/users", nil)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing users: %w", decodeAPIError(resp))
	}

	var result struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding users response: %w", err)
	}
	return result.UserIDs, nil
}

// Process materializes the due templates of userID at ref. On a partial failure
// the instances that were created are returned together with the error.
func (c *Client) Process(ctx context.Context, userID string, ref time.Time) (*ProcessResult, error) {
	body, err := json.Marshal(struct {
		UserID        string `json:"user_id"`
		ReferenceDate string `json:"reference_date"`
	}{UserID: userID, ReferenceDate: ref.UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("marshaling process request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/recurring/process", body)
	if err != nil {
		return nil, fmt.Errorf("processing user %s: %w", userID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		var result ProcessResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decoding process response: %w", err)
		}
		return &result, nil
	}

	var payload struct {
		errorPayload
		ProcessResult
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("processing user %s: %w", userID, &APIError{Status: resp.StatusCode})
	}
	apiErr := payload.apiError(resp.StatusCode)
	if apiErr.Code == codePartialFailure {
		return &payload.ProcessResult, fmt.Errorf("processing user %s: %w", userID, apiErr)
	}
	return nil, fmt.Errorf("processing user %s: %w", userID, apiErr)
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func (p errorPayload) apiError(status int) *APIError {
	return &APIError{Status: status, Code: p.Error.Code, Message: p.Error.Message, Details: p.Error.Details}
}

func decodeAPIError(resp *http.Response) error {
	var p errorPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	return p.apiError(resp.StatusCode)
}
