package providers

import (
	"testing"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

func testPool() *Pool {
	return NewPool(config.ProvidersConfig{
		InferenceKeys: []string{"inf-a", "inf-b", "inf-c"},
		QueueKeys:     []string{"q-a"},
	})
}

func TestPoolNextWalksInOrder(t *testing.T) {
	pool := testPool()

	index := -1
	var seen []string
	for {
		cred, err := pool.Next(enums.ProviderFamilyInference, index)
		if err == ErrExhausted {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if cred.Index != index+1 {
			t.Fatalf("expected index %d got %d", index+1, cred.Index)
		}
		seen = append(seen, cred.APIKey)
		index = cred.Index
	}

	want := []string{"inf-a", "inf-b", "inf-c"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d credentials got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], seen[i])
		}
	}
}

func TestPoolNextRestartsWithMinusOne(t *testing.T) {
	pool := testPool()

	first, err := pool.Next(enums.ProviderFamilyInference, -1)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := pool.Next(enums.ProviderFamilyInference, 2); err != ErrExhausted {
		t.Fatalf("expected exhaustion got %v", err)
	}
	again, err := pool.Next(enums.ProviderFamilyInference, -1)
	if err != nil {
		t.Fatalf("next after restart: %v", err)
	}
	if again.APIKey != first.APIKey || again.Index != 0 {
		t.Fatalf("expected restart at first credential, got %+v", again)
	}
}

func TestPoolEmptyFamilyExhaustsImmediately(t *testing.T) {
	pool := testPool()
	if _, err := pool.Next(enums.ProviderFamilySession, -1); err != ErrExhausted {
		t.Fatalf("expected exhaustion got %v", err)
	}
	if err := pool.Require(enums.ProviderFamilySession); err == nil {
		t.Fatal("expected require to fail for empty family")
	}
	if err := pool.Require(enums.ProviderFamilyQueue); err != nil {
		t.Fatalf("require queue: %v", err)
	}
}
