package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// SessionAdapter talks to providers that scope generation inside an
// explicit session. The session is opened before the call and closed after
// it, success or not, so provider-side slots are not leaked.
type SessionAdapter struct {
	baseURL string
	client  httpDoer
}

func NewSessionAdapter(baseURL string, client httpDoer) *SessionAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SessionAdapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (a *SessionAdapter) Family() enums.ProviderFamily {
	return enums.ProviderFamilySession
}

func (a *SessionAdapter) Generate(ctx context.Context, req Request, model ModelConfig, cred Credential) (*Result, error) {
	opened, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/sessions", cred.APIKey, map[string]any{"model": model.Model})
	if err != nil {
		return nil, err
	}
	sessionID, ok := ExtractJobID(opened)
	if !ok {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "open response carried no session id"}
	}
	defer a.closeSession(ctx, sessionID, cred)

	payload, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/sessions/"+sessionID+"/generate", cred.APIKey, buildPayload(req, model))
	if err != nil {
		return nil, err
	}

	url, ok := ExtractResultURL(payload)
	if !ok {
		return nil, &Failure{Kind: FailureProvider, Retryable: false, Detail: "generate response carried no result URL"}
	}
	return &Result{MediaURL: url}, nil
}

// closeSession is best effort. The parent context may already be canceled
// or expired, so the close gets a short independent deadline.
func (a *SessionAdapter) closeSession(ctx context.Context, sessionID string, cred Credential) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, _ = doJSON(closeCtx, a.client, http.MethodDelete, a.baseURL+"/v1/sessions/"+sessionID, cred.APIKey, nil)
}
