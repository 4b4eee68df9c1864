package enums

import "strings"

// PaymentStatus mirrors the settlement states reported by the crypto payment
// provider's webhook deliveries.
type PaymentStatus string

const (
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusExpired       PaymentStatus = "expired"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusWaiting,
	PaymentStatusConfirming,
	PaymentStatusConfirmed,
	PaymentStatusSending,
	PaymentStatusPartiallyPaid,
	PaymentStatusFinished,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusExpired,
}

// IsValid reports whether the value matches the payment status enum.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Settled reports whether the payment has reached a state that releases credits.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusFinished || p == PaymentStatusConfirmed
}

// NormalizePaymentStatus lowercases and trims a raw webhook status string.
func NormalizePaymentStatus(value string) PaymentStatus {
	return PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
}
