package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/customer/domain"
	"gorm.io/gorm"
)

const customerColumns = `id, name, phone, email, address, total_debt, total_purchases, total_paid,
	bill_count, version, created_at, updated_at`

const entryColumns = `id, customer_id, version, kind, bill_id, bill_number, bill_amount, amount_paid,
	debt_added, debt_before, debt_after, note, idempotency_key, actor_id, date`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.Phone,
		c.Email,
		c.Address,
		c.TotalDebt,
		c.TotalPurchases,
		c.TotalPaid,
		c.BillCount,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE phone = ? AND deleted_at IS NULL`,
		phone,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) UpdateBalances(ctx context.Context, db *gorm.DB, c *domain.Customer, expectedVersion int64) error {
	if c == nil {
		return gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET total_debt = ?, total_purchases = ?, total_paid = ?, bill_count = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		c.TotalDebt,
		c.TotalPurchases,
		c.TotalPaid,
		c.BillCount,
		c.Version,
		c.UpdatedAt,
		c.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at,
		at,
		id,
	).Error
}

func (r *repo) UnlinkBills(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(`UPDATE bills SET customer_id = NULL WHERE customer_id = ?`, id)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, e *domain.PaymentHistory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_history (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.CustomerID,
		e.Version,
		e.Kind,
		e.BillID,
		e.BillNumber,
		e.BillAmount,
		e.AmountPaid,
		e.DebtAdded,
		e.DebtBefore,
		e.DebtAfter,
		e.Note,
		e.IdempotencyKey,
		e.ActorID,
		e.Date,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.PaymentHistory, error) {
	var entries []domain.PaymentHistory
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payment_history WHERE customer_id = ? ORDER BY version ASC`,
		customerID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListEntriesAfter(ctx context.Context, db *gorm.DB, customerID snowflake.ID, afterVersion int64, limit int) ([]domain.PaymentHistory, error) {
	var entries []domain.PaymentHistory
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payment_history WHERE customer_id = ? AND version > ? ORDER BY version ASC LIMIT ?`,
		customerID,
		afterVersion,
		limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB, after snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM customers WHERE deleted_at IS NULL AND id > ? ORDER BY id ASC LIMIT ?`,
		after,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindEntryByIdempotencyKey(ctx context.Context, db *gorm.DB, customerID snowflake.ID, key string) (*domain.PaymentHistory, error) {
	var e domain.PaymentHistory
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM payment_history WHERE customer_id = ? AND idempotency_key = ?`,
		customerID,
		key,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}
