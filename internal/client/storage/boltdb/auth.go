package boltdb

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/iudanet/playerid/internal/client/storage"
)

// В bucket auth живет одна запись: сессия текущей установки.
// Повторная регистрация или refresh перезаписывают ее целиком.
var sessionKey = []byte("session")

// SaveAuth replaces the persisted session record
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketAuth)
		if err != nil {
			return err
		}
		return putRecord(bucket, sessionKey, "auth data", auth)
	})
}

// GetAuth returns the persisted session record or storage.ErrAuthNotFound
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	auth := &storage.AuthData{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketAuth)
		if err != nil {
			return err
		}
		return getRecord(bucket, sessionKey, "auth data", storage.ErrAuthNotFound, auth)
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// DeleteAuth drops the session record (logout, rejected refresh)
func (s *Storage) DeleteAuth(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketAuth)
		if err != nil {
			return err
		}
		return deleteRecord(bucket, sessionKey, "auth data", storage.ErrAuthNotFound)
	})
}
