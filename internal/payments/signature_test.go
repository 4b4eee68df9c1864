package payments

import "testing"

func TestCanonicalizeSortsKeysAtEveryDepth(t *testing.T) {
	a := []byte(`{"b":{"y":1,"x":[{"q":1,"p":2}]},"a":3}`)
	b := []byte(`{"a":3,"b":{"x":[{"p":2,"q":1}],"y":1}}`)

	ca, err := canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical forms differ:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalizePreservesNumberText(t *testing.T) {
	a, err := canonicalize([]byte(`{"amount":"1.50"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	b, err := canonicalize([]byte(`{"amount":"1.5"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("different payload text must canonicalize differently")
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"invoice_id":"inv_1","payment_status":"finished"}`)
	signature, err := ComputeSignature("secret-a", body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifySignature("secret-a", body, signature); err != nil {
		t.Fatalf("matching secret rejected: %v", err)
	}
	if err := VerifySignature("secret-b", body, signature); err == nil {
		t.Fatal("wrong secret accepted")
	}
}

func TestVerifySignatureRejectsNonHex(t *testing.T) {
	if err := VerifySignature("secret", []byte(`{}`), "not-hex!"); err == nil {
		t.Fatal("garbage signature accepted")
	}
}
