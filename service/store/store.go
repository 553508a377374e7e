// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package store provides the persistent key/value storage backing host
// client credentials.
package store

import (
	"errors"
)

var (
	ErrNotFound = errors.New("error: not found")
	ErrEmptyKey = errors.New("error: empty key")
	ErrConflict = errors.New("error: key already exists")
)

type Store interface {
	// Put stores value under key failing with ErrConflict if the key is
	// already present.
	Put(key, value string) error
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	// Keys returns all the keys starting with prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}

func New(dataSource string) (Store, error) {
	return newBitcaskStore(dataSource)
}
