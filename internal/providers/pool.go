package providers

import (
	"errors"
	"fmt"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
)

// ErrExhausted is returned by Next when every credential in a family has
// already been tried in the current rotation round.
var ErrExhausted = errors.New("credential pool exhausted")

// Credential is a single API key plus its stable position in the family
// list. The index lets callers resume rotation without the pool keeping
// any per-request state.
type Credential struct {
	APIKey string
	Index  int
}

// Pool holds the configured credentials per provider family. It is
// immutable after construction and safe for concurrent use.
type Pool struct {
	keys map[enums.ProviderFamily][]string
}

func NewPool(cfg config.ProvidersConfig) *Pool {
	return &Pool{keys: map[enums.ProviderFamily][]string{
		enums.ProviderFamilyInference: cfg.InferenceKeys,
		enums.ProviderFamilyQueue:     cfg.QueueKeys,
		enums.ProviderFamilySession:   cfg.SessionKeys,
	}}
}

// Next returns the credential following afterIndex within the family.
// Pass -1 to start a round at the first credential. Once the index reaches
// the end of the list the round is over and ErrExhausted is returned;
// callers begin a fresh round by passing -1 again.
func (p *Pool) Next(family enums.ProviderFamily, afterIndex int) (Credential, error) {
	keys := p.keys[family]
	next := afterIndex + 1
	if next < 0 || next >= len(keys) {
		return Credential{}, ErrExhausted
	}
	return Credential{APIKey: keys[next], Index: next}, nil
}

// Size reports how many credentials a family carries.
func (p *Pool) Size(family enums.ProviderFamily) int {
	return len(p.keys[family])
}

// Require fails when a family has no credentials configured. The catalog
// calls this at startup so a misconfigured family surfaces immediately
// rather than on the first request.
func (p *Pool) Require(family enums.ProviderFamily) error {
	if len(p.keys[family]) == 0 {
		return fmt.Errorf("no credentials configured for provider family %q", family)
	}
	return nil
}
