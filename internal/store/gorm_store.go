package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/gudTECH/nag-bot/internal/db"
	"github.com/gudTECH/nag-bot/internal/ids"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := &GormStore{db: gormDB}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&userRow{}, &conflictRow{}, &prevTicketRow{})
}

func (s *GormStore) GetOrCreateUser(ctx context.Context, username string) (User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := time.Now().UTC()
			rec := DefaultUser(username)
			rec.CreatedAt = now
			rec.UpdatedAt = now
			created := userRowFromRecord(rec)
			if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
				return User{}, fmt.Errorf("create user: %w", err)
			}
			return rec, nil
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return row.toRecord()
}

func (s *GormStore) SaveUser(ctx context.Context, user User) error {
	user.UpdatedAt = time.Now().UTC()
	row := userRowFromRecord(user)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, false)
}

func (s *GormStore) ListActiveUsers(ctx context.Context) ([]User, error) {
	return s.listUsers(ctx, true)
}

func (s *GormStore) listUsers(ctx context.Context, activeOnly bool) ([]User, error) {
	var rows []userRow
	q := s.db.WithContext(ctx).Order("username")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]User, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) CreateConflict(ctx context.Context, username string, kind ConflictKind, ticketKeys []string) (Conflict, error) {
	now := time.Now().UTC()
	rec := Conflict{
		ID:         ids.New(),
		Username:   username,
		Kind:       kind,
		TicketKeys: append([]string(nil), ticketKeys...),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	row, err := conflictRowFromRecord(rec)
	if err != nil {
		return Conflict{}, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Conflict{}, fmt.Errorf("create conflict: %w", err)
	}
	return rec, nil
}

func (s *GormStore) ActiveConflicts(ctx context.Context, username string) ([]Conflict, error) {
	var rows []conflictRow
	err := s.db.WithContext(ctx).
		Where("username = ? AND active = ?", username, true).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	out := make([]Conflict, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) DeactivateConflict(ctx context.Context, conflictID string) error {
	res := s.db.WithContext(ctx).Model(&conflictRow{}).
		Where("id = ?", conflictID).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("deactivate conflict: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeactivateUserConflicts(ctx context.Context, username string) error {
	err := s.db.WithContext(ctx).Model(&conflictRow{}).
		Where("username = ? AND active = ?", username, true).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("deactivate user conflicts: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertPrevTicket(ctx context.Context, username, ticketKey string) error {
	row := prevTicketRow{
		Username:  username,
		TicketKey: ticketKey,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("upsert prev ticket: %w", err)
	}
	return nil
}

func (s *GormStore) GetPrevTicket(ctx context.Context, username string) (PrevTicket, error) {
	var row prevTicketRow
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PrevTicket{}, ErrNotFound
		}
		return PrevTicket{}, fmt.Errorf("get prev ticket: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close gorm store: %w", err)
	}
	return sqlDB.Close()
}
