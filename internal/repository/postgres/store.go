package postgres

import "github.com/andresuchdata/autopo-engine/internal/repository"

var (
	_ repository.RegistryReader           = (*registryRepository)(nil)
	_ repository.LedgerReader             = (*registryRepository)(nil)
	_ repository.RecommendationRepository = (*recommendationRepository)(nil)
	_ repository.RunRepository            = (*runRepository)(nil)
)

// NewStore wires every postgres repository onto one pool.
func NewStore(db *DB) repository.Store {
	registry := NewRegistryRepository(db)
	return repository.Store{
		Registry:        registry,
		Ledger:          registry,
		Recommendations: NewRecommendationRepository(db),
		Runs:            NewRunRepository(db),
	}
}
