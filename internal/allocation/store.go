package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"seatnext/pkg/cache"
)

// ErrProposalGone is returned for a proposal that expired, was discarded or
// was already confirmed
var ErrProposalGone = errors.New("proposal not found")

// ProposalStore holds split proposals until the patron decides
type ProposalStore interface {
	Save(ctx context.Context, p *Proposal, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) (*Proposal, error)
	// Take removes and returns a proposal; a second Take fails
	Take(ctx context.Context, id uuid.UUID) (*Proposal, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type cacheStore struct {
	cache cache.Service
}

// NewCacheStore keeps proposals in the Redis cache with a TTL
func NewCacheStore(c cache.Service) ProposalStore {
	return &cacheStore{cache: c}
}

func ProposalKey(id uuid.UUID) string {
	return "seatnext:proposal:" + id.String()
}

func (s *cacheStore) Save(ctx context.Context, p *Proposal, ttl time.Duration) error {
	return s.cache.Set(ctx, ProposalKey(p.ID), p, ttl)
}

func (s *cacheStore) Get(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	var p Proposal
	if err := s.cache.Get(ctx, ProposalKey(id), &p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *cacheStore) Take(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	var p Proposal
	if err := s.cache.Take(ctx, ProposalKey(id), &p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *cacheStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.cache.Delete(ctx, ProposalKey(id))
}

func translate(err error) error {
	if errors.Is(err, cache.ErrCacheMiss) {
		return ErrProposalGone
	}
	return err
}
