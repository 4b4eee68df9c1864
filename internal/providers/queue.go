package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// QueueAdapter talks to submit-and-poll providers. A POST enqueues the job
// and returns an id; the adapter then polls the job endpoint until the
// provider reports a terminal state.
type QueueAdapter struct {
	baseURL string
	client  httpDoer
}

func NewQueueAdapter(baseURL string, client httpDoer) *QueueAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &QueueAdapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (a *QueueAdapter) Family() enums.ProviderFamily {
	return enums.ProviderFamilyQueue
}

func (a *QueueAdapter) Generate(ctx context.Context, req Request, model ModelConfig, cred Credential) (*Result, error) {
	submitted, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/jobs", cred.APIKey, buildPayload(req, model))
	if err != nil {
		return nil, err
	}

	jobID, ok := ExtractJobID(submitted)
	if !ok {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "submit response carried no job id"}
	}

	statusURL := a.baseURL + "/v1/jobs/" + jobID
	poller := NewPoller(model.PollInterval, model.PollAttempts)
	return poller.Poll(ctx, func(ctx context.Context) (map[string]any, error) {
		return doJSON(ctx, a.client, http.MethodGet, statusURL, cred.APIKey, nil)
	})
}
