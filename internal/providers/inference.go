package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// InferenceAdapter talks to synchronous inference providers. A single POST
// returns the finished media URL in the response body.
type InferenceAdapter struct {
	baseURL string
	client  httpDoer
}

func NewInferenceAdapter(baseURL string, client httpDoer) *InferenceAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &InferenceAdapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (a *InferenceAdapter) Family() enums.ProviderFamily {
	return enums.ProviderFamilyInference
}

func (a *InferenceAdapter) Generate(ctx context.Context, req Request, model ModelConfig, cred Credential) (*Result, error) {
	endpoint := a.baseURL + "/v1/generate"
	if model.Endpoint != "" {
		endpoint = a.baseURL + model.Endpoint
	}

	payload, err := doJSON(ctx, a.client, http.MethodPost, endpoint, cred.APIKey, buildPayload(req, model))
	if err != nil {
		return nil, err
	}

	url, ok := ExtractResultURL(payload)
	if !ok {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "response carried no result URL"}
	}
	return &Result{MediaURL: url}, nil
}
