package service

import (
	"context"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
)

// PendingCounts is the number of contracts awaiting each role's action
type PendingCounts struct {
	ProjectManager int `json:"project_manager"`
	ProgramManager int `json:"program_manager"`
	Director       int `json:"director"`
}

// For returns the count for role r
func (p PendingCounts) For(r model.Role) int {
	switch r {
	case model.RoleProjectManager:
		return p.ProjectManager
	case model.RoleProgramManager:
		return p.ProgramManager
	case model.RoleDirector:
		return p.Director
	}
	return 0
}

// AwaitingRole reports which role must act next on a contract in status s
func AwaitingRole(s model.Status) (model.Role, bool) {
	switch s {
	case model.StatusDraft, model.StatusRejected:
		return model.RoleProjectManager, true
	case model.StatusUnderReview:
		return model.RoleProgramManager, true
	case model.StatusReviewed:
		return model.RoleDirector, true
	}
	return "", false
}

// Aggregate counts pending work from contract statuses alone
func Aggregate(contracts []model.Contract) PendingCounts {
	var counts PendingCounts
	for i := range contracts {
		role, ok := AwaitingRole(contracts[i].Status)
		if !ok {
			continue
		}
		switch role {
		case model.RoleProjectManager:
			counts.ProjectManager++
		case model.RoleProgramManager:
			counts.ProgramManager++
		case model.RoleDirector:
			counts.Director++
		}
	}
	return counts
}

// PendingCache stores the last aggregate. A miss returns ok == false.
// Every invalidation bumps a generation, and a write computed under an
// older generation is dropped.
type PendingCache interface {
	Get(ctx context.Context) (PendingCounts, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetIfGeneration(ctx context.Context, counts PendingCounts, gen int64, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context) error
}

// PendingService serves the aggregate, through the cache when one is set.
// Cache failures fall back to recomputing.
type PendingService struct {
	contracts *ContractStore
	cache     PendingCache
	ttl       time.Duration
}

func NewPendingService(contracts *ContractStore, cache PendingCache, ttl time.Duration) *PendingService {
	return &PendingService{contracts: contracts, cache: cache, ttl: ttl}
}

func (s *PendingService) Counts(ctx context.Context) (PendingCounts, error) {
	var (
		gen      int64
		cachable bool
	)
	if s.cache != nil {
		counts, ok, err := s.cache.Get(ctx)
		if err != nil {
			logger.Warn(ctx, "pending cache read failed", "error", err)
		} else if ok {
			return counts, nil
		}
		// the generation must be read before the contracts
		if gen, err = s.cache.Generation(ctx); err != nil {
			logger.Warn(ctx, "pending cache generation read failed", "error", err)
		} else {
			cachable = true
		}
	}

	contracts, err := s.contracts.List(ctx, ListOptions{})
	if err != nil {
		return PendingCounts{}, err
	}
	counts := Aggregate(contracts)

	if cachable {
		stored, err := s.cache.SetIfGeneration(ctx, counts, gen, s.ttl)
		switch {
		case err != nil:
			logger.Warn(ctx, "pending cache write failed", "error", err)
		case !stored:
			logger.Debug(ctx, "pending counts superseded by a transition", "generation", gen)
		}
	}
	return counts, nil
}

// Invalidate drops the cached aggregate; called after every status change
func (s *PendingService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.Warn(ctx, "pending cache invalidation failed", "error", err)
	}
}
