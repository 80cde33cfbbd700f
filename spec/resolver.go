package spec

import "context"

// Resolver resolves specification params for the dispatcher at fire time.
// It satisfies schedule.SpecificationResolver.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over a specification store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveParams returns the parameter bundle for a specification id.
func (r *Resolver) ResolveParams(ctx context.Context, specID string) (map[string]any, error) {
	spec, err := r.store.Get(specID)
	if err != nil {
		return nil, err
	}
	return spec.Params, nil
}
