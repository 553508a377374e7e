// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"git.mills.io/prologic/bitcask"
)

type bitcaskStore struct {
	db *bitcask.Bitcask
	// mut serializes check-and-write sequences (Put). Single operations are
	// already safe on the underlying db.
	mut sync.Mutex
}

func newBitcaskStore(path string) (*bitcaskStore, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid data source: should not be empty")
	}

	db, err := bitcask.Open(path,
		bitcask.WithDirFileModeBeforeUmask(0700),
		bitcask.WithFileFileModeBeforeUmask(0600))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	return &bitcaskStore{
		db: db,
	}, nil
}

func (s *bitcaskStore) write(key, value string) error {
	if err := s.db.Put([]byte(key), []byte(value)); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("failed to sync db: %w", err)
	}
	return nil
}

func (s *bitcaskStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.write(key, value)
}

func (s *bitcaskStore) Put(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	if s.db.Has([]byte(key)) {
		return ErrConflict
	}

	return s.write(key, value)
}

func (s *bitcaskStore) Get(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	val, err := s.db.Get([]byte(key))
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return string(val), nil
}

func (s *bitcaskStore) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.db.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("failed to sync db: %w", err)
	}

	return nil
}

func (s *bitcaskStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.Scan([]byte(prefix), func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *bitcaskStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
