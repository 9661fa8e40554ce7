package database

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the GORM-backed entity store consumed by the aggregation
// rules. Gets return (nil, nil) when no row exists; sets are upserts
// keyed by the primary key, so a duplicate write is last-write-wins.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) upsert(ctx context.Context, row interface{}) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	if err != nil {
		return errors.Wrap(err, "Store.upsert")
	}

	return nil
}

func (s *Store) Permission(ctx context.Context, id string) (*Permission, error) {
	var row Permission
	err := s.db.WithContext(ctx).Where(&Permission{ID: id}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store.Permission")
	}

	return &row, nil
}

func (s *Store) SetPermission(ctx context.Context, row *Permission) error {
	return s.upsert(ctx, row)
}

func (s *Store) SetPayment(ctx context.Context, row *Payment) error {
	return s.upsert(ctx, row)
}

func (s *Store) User(ctx context.Context, id string) (*User, error) {
	var row User
	err := s.db.WithContext(ctx).Where(&User{ID: id}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store.User")
	}

	return &row, nil
}

func (s *Store) SetUser(ctx context.Context, row *User) error {
	return s.upsert(ctx, row)
}

func (s *Store) DailyStats(ctx context.Context, id string) (*DailyStats, error) {
	var row DailyStats
	err := s.db.WithContext(ctx).Where(&DailyStats{ID: id}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store.DailyStats")
	}

	return &row, nil
}

func (s *Store) SetDailyStats(ctx context.Context, row *DailyStats) error {
	return s.upsert(ctx, row)
}

func (s *Store) Analytics(ctx context.Context) (*Analytics, error) {
	var row Analytics
	err := s.db.WithContext(ctx).Where(&Analytics{ID: AnalyticsID}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store.Analytics")
	}

	return &row, nil
}

func (s *Store) SetAnalytics(ctx context.Context, row *Analytics) error {
	return s.upsert(ctx, row)
}
