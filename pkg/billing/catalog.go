package billing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// PlanSeed is a plan definition loaded from a catalog source, used to
// pre-register plans at startup.
type PlanSeed struct {
	OwnerID             uuid.UUID
	Code                string
	Price               int64
	Term                time.Duration
	SettlementAccountID uuid.UUID
}

// CatalogSource loads plan seeds from some backing store.
type CatalogSource interface {
	Load(ctx context.Context) ([]PlanSeed, error)
}

type memCatalogSource struct {
	seeds []PlanSeed
}

// NewMemCatalogSource returns a CatalogSource over a fixed list of seeds.
func NewMemCatalogSource(seeds ...PlanSeed) CatalogSource {
	return &memCatalogSource{seeds: seeds}
}

func (s *memCatalogSource) Load(ctx context.Context) ([]PlanSeed, error) {
	out := make([]PlanSeed, len(s.seeds))
	copy(out, s.seeds)
	return out, nil
}

// catalogEntry is the YAML wire form of a plan seed. Owner and settlement
// are UUID strings; term is a Go duration string ("168h", "1s").
type catalogEntry struct {
	Owner      string `yaml:"owner"`
	Code       string `yaml:"code"`
	Price      int64  `yaml:"price"`
	Term       string `yaml:"term"`
	Settlement string `yaml:"settlement"`
}

type fileCatalogSource struct {
	path string
}

// NewFileCatalogSource returns a CatalogSource reading a YAML plan list:
//
//	- owner: 7c4a...-uuid
//	  code: pro-weekly
//	  price: 1000
//	  term: 168h
//	  settlement: 9f1b...-uuid
func NewFileCatalogSource(path string) CatalogSource {
	return &fileCatalogSource{path: path}
}

func (s *fileCatalogSource) Load(ctx context.Context) ([]PlanSeed, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	var entries []catalogEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	seeds := make([]PlanSeed, 0, len(entries))
	for i, e := range entries {
		owner, err := uuid.Parse(e.Owner)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadCatalog, fmt.Errorf("entry %d: invalid owner: %w", i, err))
		}
		settlement, err := uuid.Parse(e.Settlement)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadCatalog, fmt.Errorf("entry %d: invalid settlement: %w", i, err))
		}
		term, err := time.ParseDuration(e.Term)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadCatalog, fmt.Errorf("entry %d: invalid term: %w", i, err))
		}
		seeds = append(seeds, PlanSeed{
			OwnerID:             owner,
			Code:                e.Code,
			Price:               e.Price,
			Term:                term,
			SettlementAccountID: settlement,
		})
	}
	return seeds, nil
}

// SeedPlans registers every seed from src through the service. Seeds whose
// (owner, code) pair already exists are skipped, so seeding is idempotent
// across restarts.
func SeedPlans(ctx context.Context, svc Service, src CatalogSource) error {
	seeds, err := src.Load(ctx)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		_, err := svc.CreatePlan(ctx, seed.OwnerID, seed.Code, seed.Price, seed.Term, seed.SettlementAccountID)
		if err != nil && !errors.Is(err, ErrDuplicatePlan) {
			return err
		}
	}
	return nil
}
