// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package store

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()

	dbDir, err := os.MkdirTemp("", "db")
	require.NoError(t, err)
	t.Cleanup(func() {
		os.RemoveAll(dbDir)
	})

	st, err := New(dbDir)
	require.NoError(t, err)
	require.NotNil(t, st)

	return st, dbDir
}

func TestNew(t *testing.T) {
	t.Run("empty data source", func(t *testing.T) {
		st, err := New("")
		require.EqualError(t, err, "invalid data source: should not be empty")
		require.Nil(t, st)
	})

	t.Run("valid", func(t *testing.T) {
		st, _ := newTestStore(t)
		require.NoError(t, st.Close())
	})
}

func TestPut(t *testing.T) {
	st, _ := newTestStore(t)
	defer st.Close()

	t.Run("empty key", func(t *testing.T) {
		require.ErrorIs(t, st.Put("", "value"), ErrEmptyKey)
	})

	t.Run("new key", func(t *testing.T) {
		require.NoError(t, st.Put("client:a", "hash"))
	})

	t.Run("conflict", func(t *testing.T) {
		require.ErrorIs(t, st.Put("client:a", "other"), ErrConflict)
		val, err := st.Get("client:a")
		require.NoError(t, err)
		require.Equal(t, "hash", val)
	})

	t.Run("concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		var nErrors int32
		n := 10
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if err := st.Put("client:b", "hash"); err != nil {
					atomic.AddInt32(&nErrors, 1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(n-1), atomic.LoadInt32(&nErrors))
	})
}

func TestGetSet(t *testing.T) {
	st, dbDir := newTestStore(t)

	t.Run("missing key", func(t *testing.T) {
		val, err := st.Get("missing")
		require.ErrorIs(t, err, ErrNotFound)
		require.Empty(t, val)
	})

	t.Run("empty key", func(t *testing.T) {
		require.ErrorIs(t, st.Set("", "value"), ErrEmptyKey)
		_, err := st.Get("")
		require.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("set and overwrite", func(t *testing.T) {
		require.NoError(t, st.Set("key", "value"))
		require.NoError(t, st.Set("key", "updated"))
		val, err := st.Get("key")
		require.NoError(t, err)
		require.Equal(t, "updated", val)
	})

	t.Run("persisted across reopening", func(t *testing.T) {
		require.NoError(t, st.Close())

		reopened, err := New(dbDir)
		require.NoError(t, err)
		defer reopened.Close()

		val, err := reopened.Get("key")
		require.NoError(t, err)
		require.Equal(t, "updated", val)
	})
}

func TestDelete(t *testing.T) {
	st, _ := newTestStore(t)
	defer st.Close()

	require.ErrorIs(t, st.Delete(""), ErrEmptyKey)
	require.NoError(t, st.Delete("missing"))

	require.NoError(t, st.Set("key", "value"))
	require.NoError(t, st.Delete("key"))
	_, err := st.Get("key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeys(t *testing.T) {
	st, _ := newTestStore(t)
	defer st.Close()

	keys, err := st.Keys("client:")
	require.NoError(t, err)
	require.Empty(t, keys)

	require.NoError(t, st.Set("client:b", "1"))
	require.NoError(t, st.Set("client:a", "2"))
	require.NoError(t, st.Set("other:c", "3"))

	keys, err = st.Keys("client:")
	require.NoError(t, err)
	require.Equal(t, []string{"client:a", "client:b"}, keys)
}
