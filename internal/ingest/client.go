package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"medcover-tracking/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SamplesPath = "/api/tracking/samples"
	EventsPath  = "/api/tracking/events"

	defaultTimeout = 15 * time.Second
)

var (
	// ErrTokenExpired is returned before any network call when the bearer token has expired
	ErrTokenExpired = errors.New("ingest token expired")
	// ErrRejected is returned when the endpoint answers but refuses the payload
	ErrRejected = errors.New("ingest endpoint rejected payload")
)

// Client posts samples and shift events to the remote ingestion endpoint
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates an ingestion client; a zero timeout uses 15 seconds
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// SendSamples posts one batch. The batch succeeds or fails as a whole.
func (c *Client) SendSamples(ctx context.Context, samples []models.PositionSample) error {
	if len(samples) == 0 {
		return nil
	}
	resp, err := c.post(ctx, SamplesPath, models.SampleBatch{Samples: samples})
	if err != nil {
		return err
	}
	if resp.Duplicates > 0 {
		// Expected after a crash between acknowledgement and local removal
		log.Printf("ℹ️  Ingest reported %d duplicate samples", resp.Duplicates)
	}
	return nil
}

// SendEvent posts a single shift event
func (c *Client) SendEvent(ctx context.Context, event models.ShiftEvent) error {
	_, err := c.post(ctx, EventsPath, event)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*models.IngestResponse, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: POST %s returned status %d: %s", ErrRejected, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	// A 2xx is an acknowledgement; the body only carries details
	result := models.IngestResponse{Success: true}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			log.Printf("⚠️  POST %s returned status %d with unreadable body: %v (treated as accepted)", path, resp.StatusCode, err)
			return &models.IngestResponse{Success: true}, nil
		}
		if !result.Success {
			return nil, fmt.Errorf("%w: %s", ErrRejected, result.Error)
		}
	}
	return &result, nil
}

// checkToken fails fast on an expired token. The signature is not verified
// here; that is the server's job.
func (c *Client) checkToken() error {
	if c.token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		// Opaque tokens are passed through untouched
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !c.now().Before(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.Format(time.RFC3339))
	}
	return nil
}
