package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// httpDoer is the slice of http.Client adapters depend on.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// doJSON issues an authenticated JSON request and decodes the JSON body.
// Non-2xx responses are classified into provider failures before any
// decoding is attempted.
func doJSON(ctx context.Context, client httpDoer, method, url, apiKey string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "encode request body: " + err.Error()}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "build request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, string(raw))
	}

	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Status: resp.StatusCode, Detail: "malformed response body"}
	}
	return payload, nil
}

// buildPayload translates the uniform request into the JSON body shared by
// all three families. Zero-valued optional fields are omitted so providers
// fall back to their own defaults.
func buildPayload(req Request, model ModelConfig) map[string]any {
	payload := map[string]any{
		"model":  model.Model,
		"prompt": req.Prompt,
	}
	if req.NegativePrompt != "" {
		payload["negative_prompt"] = req.NegativePrompt
	}
	if req.Width > 0 && req.Height > 0 {
		payload["width"] = req.Width
		payload["height"] = req.Height
	}
	if req.Steps > 0 {
		payload["steps"] = req.Steps
	}
	if req.Guidance > 0 {
		payload["guidance_scale"] = req.Guidance
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}
	if req.InputImageURL != "" {
		payload["image_url"] = req.InputImageURL
	}
	if req.DurationSec > 0 {
		payload["duration"] = req.DurationSec
	}
	return payload
}
