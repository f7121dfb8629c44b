package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/playerid/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketAuth     = []byte("auth")
	bucketLinks    = []byte("links")
	bucketMetadata = []byte("metadata")
)

// openTimeout ограничивает ожидание файловой блокировки, если БД открыта другим процессом
const openTimeout = time.Second

var (
	_ storage.AuthStorage     = (*Storage)(nil)
	_ storage.LinkStorage     = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Clear удаляет все данные сессии (auth, links, metadata) одной транзакцией
func (s *Storage) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketLinks, bucketMetadata} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("failed to delete bucket %s: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketLinks, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func bucketOf(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(name)
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return bucket, nil
}

// putRecord сериализует v в JSON и пишет под key
func putRecord(bucket *bbolt.Bucket, key []byte, what string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	if err := bucket.Put(key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

// getRecord читает key в v; отсутствие ключа возвращает notFound
func getRecord(bucket *bbolt.Bucket, key []byte, what string, notFound error, v any) error {
	data := bucket.Get(key)
	if data == nil {
		return notFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// deleteRecord удаляет key. При notFound == nil удаление отсутствующего ключа не ошибка.
func deleteRecord(bucket *bbolt.Bucket, key []byte, what string, notFound error) error {
	if notFound != nil && bucket.Get(key) == nil {
		return notFound
	}
	if err := bucket.Delete(key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	return nil
}
