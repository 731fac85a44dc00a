package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"magicstream/internal/users"
)

// GormStore keeps the hash in the refresh_token_hash column of users.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveRefreshHash(ctx context.Context, identity, hash string) error {
	result := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", identity).
		Updates(map[string]interface{}{
			"refresh_token_hash": hash,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapUnavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) LoadRefreshHash(ctx context.Context, identity string) (string, error) {
	var user users.User
	err := s.db.WithContext(ctx).
		Select("id", "refresh_token_hash").
		Where("id = ?", identity).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", wrapUnavailable(err)
	}
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash == "" {
		return "", ErrNotFound
	}
	return *user.RefreshTokenHash, nil
}

// SwapRefreshHash is a conditional UPDATE; postgres row locking makes it a
// compare-and-swap.
func (s *GormStore) SwapRefreshHash(ctx context.Context, identity, expected, next string) error {
	result := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ? AND refresh_token_hash = ?", identity, expected).
		Updates(map[string]interface{}{
			"refresh_token_hash": next,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapUnavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrHashMismatch
	}
	return nil
}

func (s *GormStore) ClearRefreshHash(ctx context.Context, identity string) error {
	result := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", identity).
		Updates(map[string]interface{}{
			"refresh_token_hash": gorm.Expr("NULL"),
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapUnavailable(result.Error)
	}
	return nil
}

func wrapUnavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
