package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// GormStore is the SQL backend. Open the *gorm.DB with TranslateError enabled so
// unique violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db   *gorm.DB
	opts Options
}

func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	return &GormStore{db: db, opts: opts}
}

func (s *GormStore) Users() UserRepository {
	return &gormUsers{db: s.db, timeout: s.opts.opTimeout()}
}

func (s *GormStore) Transactions() TransactionRepository {
	return &gormTransactions{db: s.db, timeout: s.opts.opTimeout()}
}

func (s *GormStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	ctx, cancel := bounded(ctx, s.opts.opTimeout())
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, Repositories{
			Users:        &gormUsers{db: tx, timeout: s.opts.opTimeout()},
			Transactions: &gormTransactions{db: tx, timeout: s.opts.opTimeout()},
		})
	})
	return translateGormError(err)
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := bounded(ctx, s.opts.opTimeout())
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translateGormError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrAlreadyApplied), errors.Is(err, ErrEventAlreadyApplied), errors.Is(err, ErrInsufficientCredits):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case isTimeout(err), errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

type gormUsers struct {
	db      *gorm.DB
	timeout time.Duration
}

func (r *gormUsers) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var u models.User
	if err := r.db.WithContext(ctx).Where("clerk_id = ?", clerkID).First(&u).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &u, nil
}

func (r *gormUsers) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()
	return translateGormError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *gormUsers) ApplyPatch(ctx context.Context, clerkID, eventID string, patch models.UserPatch) (*models.User, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var out models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("clerk_id = ?", clerkID).
			First(&out).Error; err != nil {
			return err
		}
		if out.HasProcessed(eventID) {
			return ErrEventAlreadyApplied
		}
		cols := []string{"processed_events", "updated_at"}
		if !patch.IsEmpty() {
			for col := range patch.Columns() {
				cols = append(cols, col)
			}
			patch.Apply(&out)
		}
		out.MarkProcessed(eventID)
		return tx.Model(&out).Select(cols).Updates(&out).Error
	})
	if err != nil {
		return nil, translateGormError(err)
	}
	return &out, nil
}

func (r *gormUsers) DeleteByClerkID(ctx context.Context, clerkID string) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Where("clerk_id = ?", clerkID).Delete(&models.User{})
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormUsers) AddCredits(ctx context.Context, clerkID string, delta int64) (int64, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var balance int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta != 0 {
			// MySQL reports changed rows only, so a zero delta would look like a miss.
			res := tx.Model(&models.User{}).
				Where("clerk_id = ? AND credit_balance + ? >= 0", clerkID, delta).
				Updates(map[string]any{
					"credit_balance": gorm.Expr("credit_balance + ?", delta),
					"updated_at":     time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&models.User{}).Where("clerk_id = ?", clerkID).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return ErrNotFound
				}
				return ErrInsufficientCredits
			}
		}
		var u models.User
		if err := tx.Select("credit_balance").Where("clerk_id = ?", clerkID).First(&u).Error; err != nil {
			return err
		}
		balance = u.CreditBalance
		return nil
	})
	if err != nil {
		return 0, translateGormError(err)
	}
	return balance, nil
}

type gormTransactions struct {
	db      *gorm.DB
	timeout time.Duration
}

func (r *gormTransactions) Create(ctx context.Context, t *models.Transaction) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()
	return translateGormError(r.db.WithContext(ctx).Create(t).Error)
}

func (r *gormTransactions) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var t models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &t, nil
}

func (r *gormTransactions) SetOrderID(ctx context.Context, id, orderID string) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Update("order_id", orderID)
	if res.Error != nil {
		return translateGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		_, err := r.FindByID(ctx, id)
		return err
	}
	return nil
}

func (r *gormTransactions) MarkPaymentApplied(ctx context.Context, id string) (*models.Transaction, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	var out models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND payment = ?", id, false).
			Update("payment", true)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyApplied
		}
		return nil
	})
	if err != nil {
		return nil, translateGormError(err)
	}
	return &out, nil
}
