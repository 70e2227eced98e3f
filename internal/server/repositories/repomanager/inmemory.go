package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/artifacts"
)

// InMemoryRepositoryManager keeps records in process memory. Everything is
// lost on restart.
type InMemoryRepositoryManager struct {
	artifacts *artifacts.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{artifacts: artifacts.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) Open(context.Context, string) (*sql.DB, error) {
	return nil, nil
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

// Artifacts ignores db and always returns the same repository.
func (m *InMemoryRepositoryManager) Artifacts(*sql.DB) artifacts.Repository {
	return m.artifacts
}
