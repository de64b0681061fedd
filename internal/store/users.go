package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/models"
)

const searchResultCap = 20

// normalizeLogin lowercases and trims a login for case-insensitive matching.
func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// CreateUser inserts a user. The login defaults to the display name and is
// unique case-insensitively; a non-empty email must be unique too.
func (s *DB) CreateUser(ctx context.Context, name, login, email string, passwordHash *string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.InvalidArgument, "name is required")
	}
	if login == "" {
		login = name
	}
	normLogin := normalizeLogin(login)
	email = strings.ToLower(strings.TrimSpace(email))

	user := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Login:        strings.TrimSpace(login),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(idxUserLogin + normLogin)); err == nil {
			return apperr.New(apperr.Conflict, "login already taken")
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if email != "" {
			if _, err := txn.Get([]byte(idxUserEmail + email)); err == nil {
				return apperr.New(apperr.Conflict, "email already in use")
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		seq, err := nextSeq(txn, metaUserSeq)
		if err != nil {
			return err
		}
		key := userKey(seq)
		if err := setJSON(txn, key, user); err != nil {
			return err
		}
		if err := txn.Set([]byte(idxUserID+user.ID), key); err != nil {
			return err
		}
		if err := txn.Set([]byte(idxUserLogin+normLogin), key); err != nil {
			return err
		}
		if email != "" {
			return txn.Set([]byte(idxUserEmail+email), key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByLogin returns the user whose login matches case-insensitively.
func (s *DB) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.getUserByIndex(idxUserLogin + normalizeLogin(login))
}

// GetUserByID returns the user by ID.
func (s *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUserByIndex(idxUserID + id)
}

// GetUserByEmail returns the user bound to the email address.
func (s *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserByIndex(idxUserEmail + strings.ToLower(strings.TrimSpace(email)))
}

func (s *DB) getUserByIndex(indexKey string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return resolve(txn, []byte(indexKey), &user)
	})
	if err == badger.ErrKeyNotFound {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers returns users whose name, login or email contains query
// (case-insensitive), excluding excludeID, capped at 20, in storage order.
func (s *DB) SearchUsers(ctx context.Context, query, excludeID string) ([]models.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []models.User
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < searchResultCap; it.Next() {
			var u models.User
			err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &u)
			})
			if err != nil {
				return err
			}
			if u.ID == excludeID {
				continue
			}
			if strings.Contains(strings.ToLower(u.Name), q) ||
				strings.Contains(strings.ToLower(u.Login), q) ||
				strings.Contains(strings.ToLower(u.Email), q) {
				out = append(out, u)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
