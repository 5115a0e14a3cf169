/*
Package completion wraps the external text-completion API. The service only
needs "prompt in, text out"; everything else (endpoint shape, retries,
timeouts) stays behind the Client interface so the dispatch layer can be
tested with fakes.
*/
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
)

// --- DashScope API Configuration ---
const (
	dashScopeURLFormat = "https://dashscope.aliyuncs.com/api/v1/apps/%s/completion"
	maxRetries         = 3
	initialBackoff     = 1 * time.Second
	requestTimeout     = 30 * time.Second
)

// Client is the text-completion contract used by the dispatch gateway.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// --- Structs for DashScope Request/Response ---

type completionPayload struct {
	Input      completionInput `json:"input"`
	Parameters map[string]any  `json:"parameters"`
	Debug      map[string]any  `json:"debug"`
}

type completionInput struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
	Message string `json:"message"`
}

// DashScope calls the Aliyun DashScope application completion endpoint.
type DashScope struct {
	apiKey string
	appID  string
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewDashScope reads DASHSCOPE_API_KEY and DASHSCOPE_APP_ID from the
// environment. Missing credentials surface on the first Complete call, not
// at startup, so the rest of the app can still run against a fake.
func NewDashScope(logger zerolog.Logger) *DashScope {
	appID := os.Getenv("DASHSCOPE_APP_ID")
	return &DashScope{
		apiKey: os.Getenv("DASHSCOPE_API_KEY"),
		appID:  appID,
		url:    fmt.Sprintf(dashScopeURLFormat, appID),
		client: &http.Client{Timeout: requestTimeout},
		log:    logger,
	}
}

// Complete sends the prompt and returns the completion text, retrying
// transient failures with exponential backoff.
func (d *DashScope) Complete(ctx context.Context, prompt string) (string, error) {
	if d.apiKey == "" || d.appID == "" {
		d.log.Error().Msg("DASHSCOPE_API_KEY or DASHSCOPE_APP_ID is not set")
		return "", fmt.Errorf("server is not configured for AI completions")
	}

	payload := completionPayload{
		Input:      completionInput{Prompt: prompt},
		Parameters: map[string]any{},
		Debug:      map[string]any{},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error

	// Exponential backoff retry loop
	for i := 0; i < maxRetries; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)

		req, err := http.NewRequestWithContext(reqCtx, "POST", d.url, bytes.NewBuffer(payloadBytes))
		if err != nil {
			cancel()
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		req.Header.Set("Content-Type", "application/json")

		d.log.Info().Msgf("Attempt %d: Calling DashScope API...", i+1)

		resp, err := d.client.Do(req)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			d.log.Warn().Err(lastErr).Msgf("Attempt %d failed", i+1)
			if i < maxRetries-1 {
				sleepBackoff(ctx, i)
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned non-200 status: %s, Body: %s", resp.Status, string(body))
			d.log.Warn().Err(lastErr).Msgf("Attempt %d failed", i+1)
			if i < maxRetries-1 {
				sleepBackoff(ctx, i)
			}
			continue
		}

		var compResp completionResponse
		if err := json.NewDecoder(resp.Body).Decode(&compResp); err != nil {
			resp.Body.Close()
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		resp.Body.Close()

		if compResp.Output.Text == "" {
			return "", fmt.Errorf("no content found in DashScope response")
		}
		return compResp.Output.Text, nil
	}

	return "", fmt.Errorf("failed to call DashScope API after %d attempts: %w", maxRetries, lastErr)
}

// sleepBackoff waits 1s, 2s, 4s... between attempts, returning early when
// the caller's context is cancelled.
func sleepBackoff(ctx context.Context, attempt int) {
	delay := initialBackoff * time.Duration(math.Pow(2, float64(attempt)))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
