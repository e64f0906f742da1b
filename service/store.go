package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"gorm.io/gorm"
)

// ContractStore persists canonical contracts and their history.
// Status changes go through CompareAndSet only.
type ContractStore struct {
	db *gorm.DB
}

func NewContractStore(db *gorm.DB) *ContractStore {
	return &ContractStore{db: db}
}

// ListOptions filters List
type ListOptions struct {
	Status      model.Status
	WithHistory bool
}

// Transaction runs fn in one database transaction
func (s *ContractStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *ContractStore) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx)
}

// Create inserts a new contract in its current status with version 1.
// An existing id yields a conflict.
func (s *ContractStore) Create(ctx context.Context, contract *model.Contract) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Contract{}).Where("id = ?", contract.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check contract: %w", err)
		}
		if count > 0 {
			return newError(KindConflict, "contract %s already exists", contract.ID)
		}

		now := time.Now().UTC()
		contract.Version = 1
		contract.CreatedAt = now
		contract.UpdatedAt = now
		history := contract.History
		contract.History = nil
		if err := tx.Omit("History").Create(contract).Error; err != nil {
			// a concurrent insert of the same id won after the count
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindConflict, "contract %s already exists", contract.ID)
			}
			return fmt.Errorf("failed to create contract: %w", err)
		}
		for i := range history {
			history[i].ID = 0
			history[i].ContractID = contract.ID
			if err := tx.Create(&history[i]).Error; err != nil {
				return fmt.Errorf("failed to create history: %w", err)
			}
		}
		contract.History = history

		logger.Info(ctx, "contract created", "contract_id", contract.ID, "status", contract.Status)
		return nil
	})
}

// Get returns the contract with its ordered history
func (s *ContractStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	var contract model.Contract
	err := s.conn(ctx, nil).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("at ASC, id ASC") }).
		First(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "contract %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return &contract, nil
}

// Head returns the contract row without history
func (s *ContractStore) Head(ctx context.Context, tx *gorm.DB, id string) (*model.Contract, error) {
	var contract model.Contract
	err := s.conn(ctx, tx).First(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "contract %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return &contract, nil
}

func (s *ContractStore) List(ctx context.Context, opts ListOptions) ([]model.Contract, error) {
	q := s.conn(ctx, nil).Order("created_at ASC, id ASC")
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.WithHistory {
		q = q.Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("at ASC, id ASC") })
	}
	var contracts []model.Contract
	if err := q.Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

// History returns the audit trail of a contract, oldest first
func (s *ContractStore) History(ctx context.Context, tx *gorm.DB, id string) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	err := s.conn(ctx, tx).Where("contract_id = ?", id).Order("at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return entries, nil
}

// CompareAndSet moves contract id from expected to next in one conditional
// update, applying extra column updates alongside. When no row matches the
// contract is either missing (not found) or was changed concurrently
// (conflict).
func (s *ContractStore) CompareAndSet(ctx context.Context, tx *gorm.DB, id string, expected, next model.Status, updates map[string]any) error {
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = next
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	res := s.conn(ctx, tx).
		Model(&model.Contract{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update contract: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := s.Head(ctx, tx, id)
	if err != nil {
		return err
	}
	return newError(KindConflict, "contract %s is %s, expected %s", id, current.Status, expected)
}

// AppendHistory inserts one audit entry
func (s *ContractStore) AppendHistory(ctx context.Context, tx *gorm.DB, entry *model.HistoryEntry) error {
	if err := s.conn(ctx, tx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Count returns the number of stored contracts
func (s *ContractStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx, nil).Model(&model.Contract{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return n, nil
}
