// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package random

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.Len(t, id, idLen)
		for _, c := range id {
			require.Contains(t, zbase32Charset, string(c))
		}
		_, ok := seen[id]
		require.False(t, ok)
		seen[id] = struct{}{}
	}
}

func TestNewSecureString(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		str, err := NewSecureString(0)
		require.NoError(t, err)
		require.Empty(t, str)
	})

	t.Run("negative", func(t *testing.T) {
		str, err := NewSecureString(-1)
		require.Error(t, err)
		require.Empty(t, str)
	})

	t.Run("lengths", func(t *testing.T) {
		for i := 1; i <= 512; i++ {
			str, err := NewSecureString(i)
			require.NoError(t, err)
			require.Len(t, str, i)
		}
	})
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	require.Len(t, a, tokenLen)

	b, err := NewToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
