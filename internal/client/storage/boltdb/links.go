package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/models"
)

// SaveLink upserts the link keyed by its provider
func (s *Storage) SaveLink(ctx context.Context, link models.Link) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketLinks)
		if err != nil {
			return err
		}
		return putLink(bucket, link)
	})
}

// GetLink returns the cached link for provider
func (s *Storage) GetLink(ctx context.Context, provider models.Provider) (*models.Link, error) {
	link := &models.Link{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketLinks)
		if err != nil {
			return err
		}
		return getRecord(bucket, []byte(provider), "link", storage.ErrLinkNotFound, link)
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

// DeleteLink removes the cached link for provider
func (s *Storage) DeleteLink(ctx context.Context, provider models.Provider) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketLinks)
		if err != nil {
			return err
		}
		return deleteRecord(bucket, []byte(provider), "link", storage.ErrLinkNotFound)
	})
}

// ListLinks returns every cached link; bbolt keeps keys sorted, so the order is by provider
func (s *Storage) ListLinks(ctx context.Context) ([]models.Link, error) {
	links := make([]models.Link, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := bucketOf(tx, bucketLinks)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(k, v []byte) error {
			var link models.Link
			if err := json.Unmarshal(v, &link); err != nil {
				return fmt.Errorf("failed to unmarshal link %s: %w", k, err)
			}
			links = append(links, link)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return links, nil
}

// ReplaceLinks drops all cached links and writes the snapshot in one transaction
func (s *Storage) ReplaceLinks(ctx context.Context, links []models.Link) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketLinks) != nil {
			if err := tx.DeleteBucket(bucketLinks); err != nil {
				return fmt.Errorf("failed to drop links bucket: %w", err)
			}
		}

		bucket, err := tx.CreateBucket(bucketLinks)
		if err != nil {
			return fmt.Errorf("failed to create links bucket: %w", err)
		}

		for _, link := range links {
			if err := putLink(bucket, link); err != nil {
				return err
			}
		}
		return nil
	})
}

func putLink(bucket *bbolt.Bucket, link models.Link) error {
	if link.Provider == "" {
		return fmt.Errorf("link has empty provider")
	}

	return putRecord(bucket, []byte(link.Provider), "link", link)
}
