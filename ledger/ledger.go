// Package ledger is the durable record of purchases and referral
// payments. It is the single source of truth for "already counted": the
// unique reference index plus conditional status updates give the
// pipeline its exactly-once guarantees without any global lock.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/types"
)

// Store wraps the gorm handle with the pipeline's write discipline.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open connects to PostgreSQL when a DSN is configured, or falls back to
// a local SQLite file for development, and migrates the ledger tables.
func Open(dsn string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	cfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
	}

	var (
		db  *gorm.DB
		err error
	)
	if dsn == "" {
		log.Warn("DATABASE_URL not set, using SQLite", map[string]any{"file": "presale.db"})
		db, err = gorm.Open(sqlite.Open("presale.db"), cfg)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db, log: log}
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an existing gorm handle; used by tests with in-memory SQLite.
func New(db *gorm.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Store{db: db, log: log}
}

// Migrate creates or updates the ledger tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&types.PurchaseRecord{}, &types.ReferralPayment{}); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

// UpsertPurchase applies a purchase write under the per-reference
// uniqueness rule: create when absent, no-op once the existing row is
// terminal, and allow the PENDING to terminal transition exactly once.
// Concurrent writers for the same reference converge on one winner; the
// loser's write degrades to a read of the winning row.
func (s *Store) UpsertPurchase(ctx context.Context, rec *types.PurchaseRecord) (*types.PurchaseRecord, error) {
	existing, err := s.FindPurchase(ctx, rec.Reference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("purchase lookup failed: %w", err)
	}

	if existing == nil {
		if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the insert race; the first successful write wins.
				return s.FindPurchase(ctx, rec.Reference)
			}
			return nil, fmt.Errorf("purchase create failed: %w", err)
		}
		return rec, nil
	}

	if existing.Status.Terminal() {
		return existing, nil
	}
	if !rec.Status.Terminal() {
		return existing, nil
	}

	if _, err := s.MarkPurchase(ctx, rec.Reference, rec.Status); err != nil {
		return nil, err
	}
	return s.FindPurchase(ctx, rec.Reference)
}

// MarkPurchase transitions a PENDING purchase to the terminal status.
// Returns false when the row was already terminal, which callers treat as
// "another writer won", not as an error.
func (s *Store) MarkPurchase(ctx context.Context, reference string, status types.PurchaseStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("cannot mark purchase %s non-terminal", reference)
	}

	res := s.db.WithContext(ctx).
		Model(&types.PurchaseRecord{}).
		Where("reference = ? AND status = ?", reference, types.PurchasePending).
		Update("status", status)
	if res.Error != nil {
		return false, fmt.Errorf("purchase status update failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FindPurchase looks up a purchase by its transaction reference.
func (s *Store) FindPurchase(ctx context.Context, reference string) (*types.PurchaseRecord, error) {
	var rec types.PurchaseRecord
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
