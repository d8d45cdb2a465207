package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ErrVersionConflict means the customer row moved between read and write.
var ErrVersionConflict = errors.New("version_conflict")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*Customer, error)
	// UpdateBalances writes the counters and version of customer only if the
	// stored version still equals expectedVersion.
	UpdateBalances(ctx context.Context, db *gorm.DB, customer *Customer, expectedVersion int64) error
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	UnlinkBills(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *PaymentHistory) error
	ListEntries(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]PaymentHistory, error)
	// ListEntriesAfter returns at most limit entries with version > afterVersion.
	ListEntriesAfter(ctx context.Context, db *gorm.DB, customerID snowflake.ID, afterVersion int64, limit int) ([]PaymentHistory, error)
	// ListIDs pages live customer ids in ascending order after the given id.
	ListIDs(ctx context.Context, db *gorm.DB, after snowflake.ID, limit int) ([]snowflake.ID, error)
	FindEntryByIdempotencyKey(ctx context.Context, db *gorm.DB, customerID snowflake.ID, key string) (*PaymentHistory, error)
}
