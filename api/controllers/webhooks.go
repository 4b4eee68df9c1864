package controllers

import (
	"io"
	"net/http"

	"github.com/forgelabs-ai/mediaforge-backend/api/responses"
	"github.com/forgelabs-ai/mediaforge-backend/internal/payments"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// PaymentsWebhook receives settlement notifications from the payment
// provider. Responses steer the sender's redelivery: 2xx stops it, 5xx
// makes it retry.
func PaymentsWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		// The provider sends a lowercase "signature" header; older
		// integrations used X-Signature, so keep it as a fallback.
		signature := r.Header.Get("signature")
		if signature == "" {
			signature = r.Header.Get("X-Signature")
		}
		if err := svc.HandleWebhook(r.Context(), signature, body); err != nil {
			// A settlement race is transient; answer 5xx so the sender
			// redelivers instead of dropping the notification.
			if pkgerrors.HasCode(err, pkgerrors.CodeDuplicateRequest) {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settlement in progress")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
