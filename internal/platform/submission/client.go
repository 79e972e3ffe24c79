// Package submission delivers finalized assessment payloads to the external
// clinical API. Each delivery is a single signed POST; retries belong to the
// caller.
package submission

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request headers set on every delivery.
const (
	HeaderSignature = "X-Submission-Signature"
	HeaderEvent     = "X-Submission-Event"
	HeaderID        = "X-Submission-ID"
	HeaderTimestamp = "X-Submission-Timestamp"
)

// Delivery records the outcome of one POST.
type Delivery struct {
	ID           string        `json:"id"`
	EventType    string        `json:"event_type"`
	Signature    string        `json:"signature"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"` // "success", "failed"
	CreatedAt    time.Time     `json:"created_at"`
	Response     *Response     `json:"response,omitempty"`
}

// Response is the body the clinical API answers a delivery with.
type Response struct {
	Success             bool                 `json:"success"`
	RiskAssessment      *RiskAssessment      `json:"risk_assessment,omitempty"`
	GamificationRewards *GamificationRewards `json:"gamification_rewards,omitempty"`
	NextSteps           []NextStep           `json:"next_steps"`
	Message             string               `json:"message,omitempty"`
}

type RiskAssessment struct {
	Level           string   `json:"level"`
	Score           *float64 `json:"score,omitempty"`
	PrimaryConcerns []string `json:"primary_concerns,omitempty"`
}

type GamificationRewards struct {
	Points int      `json:"points"`
	Badges []string `json:"badges,omitempty"`
}

type NextStep struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// ErrNotAccepted is returned when a 2xx answer does not report success,
// including bodies that cannot be decoded.
var ErrNotAccepted = errors.New("submission not accepted")

// StatusError is returned when the remote API answers outside 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("submission rejected: status %d", e.StatusCode)
}

// SignPayload computes the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" header value against payload.
func VerifySignature(payload []byte, secret, header string) bool {
	sig := strings.TrimPrefix(header, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(sig))
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

const maxResponseBytes = 64 << 10

// Client posts signed JSON bodies to one endpoint.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(endpoint, secret string, opts ...Option) (*Client, error) {
	if err := validateURL(endpoint); err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("submission url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid submission url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("submission url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Submit signs body and POSTs it. The returned Delivery is never nil when
// the request was attempted, even if err is set.
func (c *Client) Submit(ctx context.Context, eventType string, body interface{}) (*Delivery, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	now := c.now().UTC()
	d := &Delivery{
		ID:        uuid.New().String(),
		EventType: eventType,
		Signature: SignPayload(payload, c.secret),
		Status:    "failed",
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return d, fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sha256="+d.Signature)
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderID, d.ID)
	req.Header.Set(HeaderTimestamp, now.Format(time.RFC3339))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	d.Duration = time.Since(start)
	if err != nil {
		return d, fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	d.StatusCode = resp.StatusCode
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	// Only the first 1KB is kept on the delivery record.
	d.ResponseBody = string(b[:min(len(b), 1024)])

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return d, &StatusError{StatusCode: resp.StatusCode, Body: d.ResponseBody}
	}

	var out Response
	if err := json.Unmarshal(b, &out); err != nil {
		return d, fmt.Errorf("%w: decode response: %v", ErrNotAccepted, err)
	}
	d.Response = &out
	if !out.Success {
		if out.Message != "" {
			return d, fmt.Errorf("%w: %s", ErrNotAccepted, out.Message)
		}
		return d, ErrNotAccepted
	}
	d.Status = "success"
	return d, nil
}
