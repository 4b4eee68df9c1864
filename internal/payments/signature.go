package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
)

// canonicalize re-serializes a JSON document with object keys sorted at
// every depth. Intermediaries may reorder keys in transit, so the signature
// is computed over this canonical form rather than the raw bytes. Numbers
// pass through as json.Number to keep their original textual form.
func canonicalize(raw []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order at every level.
	return json.Marshal(doc)
}

// ComputeSignature returns the hex HMAC-SHA512 of the canonicalized payload.
func ComputeSignature(secret string, raw []byte) (string, error) {
	canonical, err := canonicalize(raw)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks the signature header against the recomputed HMAC.
func VerifySignature(secret string, raw []byte, signature string) error {
	expected, err := ComputeSignature(secret, raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "webhook signature mismatch")
	}
	expectedBytes, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedBytes) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "webhook signature mismatch")
	}
	return nil
}
