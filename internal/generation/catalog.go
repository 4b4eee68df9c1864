package generation

import (
	"fmt"

	"github.com/forgelabs-ai/mediaforge-backend/internal/providers"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
)

// OperationSpec binds one billable operation to its provider family, cost,
// and tuning. Operations whose family has no credentials come up disabled
// instead of failing requests one by one.
type OperationSpec struct {
	Kind    enums.OperationKind
	Family  enums.ProviderFamily
	Cost    int64
	Model   providers.ModelConfig
	Enabled bool
}

// Catalog resolves operation kinds to their specs.
type Catalog struct {
	specs map[enums.OperationKind]OperationSpec
}

// Default per-operation credit prices.
const (
	costImageGenerate = 500
	costImageEdit     = 750
	costVideoGenerate = 2000
)

// NewCatalog wires the operation table from config. Each operation rides a
// fixed family: plain image generation on synchronous inference providers,
// edits on session providers, video on submit-and-poll queues.
func NewCatalog(genCfg config.GenerationConfig, pool *providers.Pool) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("credential pool required")
	}

	base := providers.ModelConfig{
		MaxRetries:     genCfg.MaxRetries,
		RetryDelay:     genCfg.RetryDelay,
		AttemptTimeout: genCfg.AttemptTimeout,
		PollInterval:   genCfg.PollInterval,
		PollAttempts:   genCfg.PollAttempts,
	}

	specs := map[enums.OperationKind]OperationSpec{}
	for _, op := range []struct {
		kind   enums.OperationKind
		family enums.ProviderFamily
		cost   int64
		model  string
	}{
		{enums.OperationImageGenerate, enums.ProviderFamilyInference, costImageGenerate, "mf-image-v2"},
		{enums.OperationImageEdit, enums.ProviderFamilySession, costImageEdit, "mf-edit-v1"},
		{enums.OperationVideoGenerate, enums.ProviderFamilyQueue, costVideoGenerate, "mf-video-v1"},
	} {
		model := base
		model.Model = op.model
		specs[op.kind] = OperationSpec{
			Kind:    op.kind,
			Family:  op.family,
			Cost:    op.cost,
			Model:   model,
			Enabled: pool.Size(op.family) > 0,
		}
	}
	return &Catalog{specs: specs}, nil
}

// Resolve returns the spec for kind, rejecting unknown and disabled
// operations with the codes the API maps to 400 and 503.
func (c *Catalog) Resolve(kind enums.OperationKind) (OperationSpec, error) {
	spec, ok := c.specs[kind]
	if !ok {
		return OperationSpec{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown operation %q", kind))
	}
	if !spec.Enabled {
		return OperationSpec{}, pkgerrors.New(pkgerrors.CodeOperationDisabled, fmt.Sprintf("operation %q is currently unavailable", kind))
	}
	return spec, nil
}

// Specs lists every configured operation, for the pricing endpoint.
func (c *Catalog) Specs() []OperationSpec {
	out := make([]OperationSpec, 0, len(c.specs))
	for _, kind := range []enums.OperationKind{
		enums.OperationImageGenerate,
		enums.OperationImageEdit,
		enums.OperationVideoGenerate,
	} {
		if spec, ok := c.specs[kind]; ok {
			out = append(out, spec)
		}
	}
	return out
}
