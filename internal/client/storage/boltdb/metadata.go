package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/models"
)

const (
	keyPlayerInfo = "player_info"
	keyDeviceID   = "device_id"
)

// SavePlayerInfo stores the last fetched player snapshot
func (s *Storage) SavePlayerInfo(ctx context.Context, info models.UserInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return putRecord(bucket, []byte(keyPlayerInfo), "player info", info)
	})
}

// GetPlayerInfo retrieves the cached player snapshot
func (s *Storage) GetPlayerInfo(ctx context.Context) (*models.UserInfo, error) {
	info := &models.UserInfo{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return getRecord(bucket, []byte(keyPlayerInfo), "player info", storage.ErrPlayerInfoNotFound, info)
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// DeletePlayerInfo removes the cached snapshot
func (s *Storage) DeletePlayerInfo(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return deleteRecord(bucket, []byte(keyPlayerInfo), "player info", nil)
	})
}

// SaveDeviceID stores the installation device ID
func (s *Storage) SaveDeviceID(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(keyDeviceID), []byte(deviceID))
	})
}

// GetDeviceID retrieves the installation device ID
func (s *Storage) GetDeviceID(ctx context.Context) (string, error) {
	var deviceID string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketMetadata)
		if err != nil {
			return err
		}

		data := bucket.Get([]byte(keyDeviceID))
		if data == nil {
			return storage.ErrDeviceIDNotFound
		}
		deviceID = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}

	return deviceID, nil
}
