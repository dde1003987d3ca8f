// Package boltstore persists the portal's credential record in a bbolt file.
package boltstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/eduweave/eduweave/core/session"
)

var bucketCredentials = []byte("credentials")

type Store struct {
	db *bbolt.DB
}

var _ session.CredentialStore = (*Store)(nil)

// Open opens (or creates) the credential file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetItem(_ context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get([]byte(key))
		if v == nil {
			return session.ErrItemNotFound
		}
		value = string(v)
		return nil
	})
	return value, err
}

func (s *Store) SetItem(_ context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(key), []byte(value))
	})
}

func (s *Store) RemoveItem(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete([]byte(key))
	})
}
