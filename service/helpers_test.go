package service

import (
	"context"
	"testing"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory sqlite database with the schema migrated
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedContract(t *testing.T, store *ContractStore, id string, status model.Status) *model.Contract {
	t.Helper()
	c := &model.Contract{
		ID:          id,
		Status:      status,
		GrantName:   "Water Access " + id,
		TotalAmount: decimal.NewFromInt(50000),
		Currency:    "USD",
	}
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("Failed to seed contract %s: %v", id, err)
	}
	return c
}

type fakePending struct {
	invalidations int
}

func (f *fakePending) Invalidate(context.Context) { f.invalidations++ }

type testEnv struct {
	db        *gorm.DB
	contracts *ContractStore
	comments  *CommentStore
	pending   *fakePending
	workflow  *WorkflowService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		contracts: NewContractStore(db),
		comments:  NewCommentStore(db),
		pending:   &fakePending{},
	}
	env.workflow = NewWorkflowService(env.contracts, env.comments, env.pending)
	return env
}

var (
	projectManager = model.Principal{UserID: "pm-1", Role: model.RoleProjectManager}
	programManager = model.Principal{UserID: "pgm-1", Role: model.RoleProgramManager}
	director       = model.Principal{UserID: "dir-1", Role: model.RoleDirector}
)

func principalFor(r model.Role) model.Principal {
	switch r {
	case model.RoleProgramManager:
		return programManager
	case model.RoleDirector:
		return director
	}
	return projectManager
}
