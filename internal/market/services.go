package market

// Services bundles the marketplace managers over one store.
type Services struct {
	Identity  *Identity
	Registry  *Registry
	Donations *Donations
	Requests  *Requests
	Stats     *Stats
}

// NewServices wires every manager against store with shared options.
func NewServices(store Store, opts ...Option) *Services {
	registry := NewRegistry(store, opts...)
	return &Services{
		Identity:  NewIdentity(store, opts...),
		Registry:  registry,
		Donations: NewDonations(store, registry, opts...),
		Requests:  NewRequests(store, registry, opts...),
		Stats:     NewStats(store, opts...),
	}
}
