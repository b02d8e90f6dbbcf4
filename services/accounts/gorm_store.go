package accounts

import (
	"errors"
	"fmt"

	"Renju/models/postgres"
	"Renju/protocol"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// GormStore is the PostgreSQL-backed account store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(username, password string) (*postgres.User, error) {
	var existing postgres.User
	err := s.db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, protocol.NewError(protocol.CodeUsernameTaken, "username already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := postgres.User{Username: username, PasswordHash: string(hash)}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) Authenticate(username, password string) (*postgres.User, error) {
	user, err := s.Get(username)
	if err != nil {
		return nil, err
	}
	if user.Deleted {
		return nil, protocol.NewError(protocol.CodeUnknownUser, "account does not exist")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, protocol.NewError(protocol.CodeInvalidCredentials, "incorrect password")
	}
	return user, nil
}

func (s *GormStore) Get(username string) (*postgres.User, error) {
	var user postgres.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, protocol.NewError(protocol.CodeUnknownUser, "account does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) Settle(winner, loser string, delta int, draw bool) (int, int, error) {
	winnerApplied, loserApplied := 0, 0

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var w, l postgres.User
		if err := tx.Where("username = ?", winner).First(&w).Error; err != nil {
			return fmt.Errorf("loading winner: %w", err)
		}
		if err := tx.Where("username = ?", loser).First(&l).Error; err != nil {
			return fmt.Errorf("loading loser: %w", err)
		}

		if draw {
			w.Draws++
			l.Draws++
		} else {
			winnerApplied = delta
			loserApplied = -delta
			// Credits never fall below zero.
			if l.Credits+loserApplied < 0 {
				loserApplied = -l.Credits
			}
			w.Credits += winnerApplied
			l.Credits += loserApplied
			w.Wins++
			l.Losses++
		}

		if err := tx.Save(&w).Error; err != nil {
			return fmt.Errorf("saving winner: %w", err)
		}
		if err := tx.Save(&l).Error; err != nil {
			return fmt.Errorf("saving loser: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return winnerApplied, loserApplied, nil
}

func (s *GormStore) SoftDelete(username string) error {
	res := s.db.Model(&postgres.User{}).
		Where("username = ? AND deleted = false", username).
		Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("deleting user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return protocol.NewError(protocol.CodeUnknownUser, "account does not exist")
	}
	return nil
}

func (s *GormStore) Top(limit int) ([]postgres.User, error) {
	var users []postgres.User
	err := s.db.Where("deleted = false").
		Order("credits DESC").
		Order("wins DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("loading top users: %w", err)
	}
	return users, nil
}
