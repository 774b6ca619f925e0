package service

import "context"

// EntityResolver maps an extracted entity name to an existing business
// entity (deal) identifier for richer joins. Absence of a match is not an
// error. Implemented by repository.DealRepository.
type EntityResolver interface {
	ResolveEntity(ctx context.Context, entityName string) (string, error)
}

// NoopResolver never resolves. Used when no deal inventory is wired in.
type NoopResolver struct{}

// ResolveEntity always reports no match.
func (NoopResolver) ResolveEntity(ctx context.Context, entityName string) (string, error) {
	return "", nil
}
