// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package tracks

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func viewIDs(view []Track) []string {
	ids := make([]string, 0, len(view))
	for _, t := range view {
		ids = append(ids, t.ID)
	}
	return ids
}

func setupRoom(t *testing.T, identities ...string) *Manager {
	t.Helper()
	m := NewManager()
	for _, id := range identities {
		_, err := m.Join("R1", id, true)
		require.NoError(t, err)
	}
	return m
}

func TestJoin(t *testing.T) {
	m := NewManager()

	upd, err := m.Join("R1", "alice", true)
	require.NoError(t, err)
	require.Empty(t, upd.Subscribed)
	require.Equal(t, map[string][]Track{"alice": {}}, upd.Views)

	upd, err = m.Join("R1", "bob", true)
	require.NoError(t, err)
	require.Len(t, upd.Views, 2)
	require.Equal(t, []string{"bob/camera"}, viewIDs(upd.Views["alice"]))
	require.Equal(t, []string{"alice/camera"}, viewIDs(upd.Views["bob"]))
	require.True(t, upd.Views["alice"][0].Placeholder)
	require.Equal(t, "R1", upd.Views["alice"][0].RoomID)

	_, err = m.Join("R1", "bob", true)
	require.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestCameraPlaceholder(t *testing.T) {
	m := setupRoom(t, "alice", "bob", "carol")

	before := m.ComputeSubscriptionView("R1", "alice")
	require.Equal(t, []string{"bob/camera", "carol/camera"}, viewIDs(before))

	t.Run("publishing keeps the slot", func(t *testing.T) {
		upd, err := m.OnTrackPublished(Track{ID: "carol-cam", RoomID: "R1", Owner: "carol", Kind: KindCamera})
		require.NoError(t, err)

		view := m.ComputeSubscriptionView("R1", "alice")
		require.Equal(t, []string{"bob/camera", "carol-cam"}, viewIDs(view))
		require.Equal(t, before[1].Seq, view[1].Seq)
		require.False(t, view[1].Placeholder)

		require.Equal(t, []Subscription{
			{Subscriber: "alice", Track: view[1]},
			{Subscriber: "bob", Track: view[1]},
		}, upd.Subscribed)

		// carol's own view doesn't change.
		require.Contains(t, upd.Views, "alice")
		require.Contains(t, upd.Views, "bob")
		require.NotContains(t, upd.Views, "carol")
	})

	t.Run("second camera", func(t *testing.T) {
		_, err := m.OnTrackPublished(Track{ID: "carol-cam2", RoomID: "R1", Owner: "carol", Kind: KindCamera})
		require.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("unpublishing restores the placeholder", func(t *testing.T) {
		upd, err := m.OnTrackUnpublished("R1", "carol-cam")
		require.NoError(t, err)
		require.Len(t, upd.Unsubscribed, 2)
		require.Equal(t, before, m.ComputeSubscriptionView("R1", "alice"))
		require.Empty(t, m.SubscribedBy("R1", "carol-cam"))
	})
}

func TestScreenShare(t *testing.T) {
	m := setupRoom(t, "alice", "bob")

	_, err := m.OnTrackPublished(Track{ID: "bob-screen", RoomID: "R1", Owner: "bob", Kind: KindScreenShare})
	require.NoError(t, err)
	require.Equal(t, []string{"bob/camera", "bob-screen"}, viewIDs(m.ComputeSubscriptionView("R1", "alice")))

	_, err = m.OnTrackUnpublished("R1", "bob-screen")
	require.NoError(t, err)
	// No placeholder for screen-share.
	require.Equal(t, []string{"bob/camera"}, viewIDs(m.ComputeSubscriptionView("R1", "alice")))
}

func TestAudioNotInView(t *testing.T) {
	m := setupRoom(t, "alice", "bob")

	upd, err := m.OnTrackPublished(Track{ID: "bob-mic", RoomID: "R1", Owner: "bob", Kind: KindAudio})
	require.NoError(t, err)
	require.Len(t, upd.Subscribed, 1)
	require.Equal(t, "alice", upd.Subscribed[0].Subscriber)
	require.Empty(t, upd.Views)

	require.Equal(t, []string{"alice"}, m.SubscribedBy("R1", "bob-mic"))
	require.Equal(t, []string{"bob/camera"}, viewIDs(m.ComputeSubscriptionView("R1", "alice")))
}

func TestStableOrdering(t *testing.T) {
	m := setupRoom(t, "alice", "bob", "carol", "dave")

	_, err := m.OnTrackPublished(Track{ID: "bob-screen", RoomID: "R1", Owner: "bob", Kind: KindScreenShare})
	require.NoError(t, err)
	_, err = m.OnTrackPublished(Track{ID: "dave-cam", RoomID: "R1", Owner: "dave", Kind: KindCamera})
	require.NoError(t, err)

	before := viewIDs(m.ComputeSubscriptionView("R1", "alice"))
	require.Equal(t, []string{"bob/camera", "carol/camera", "dave-cam", "bob-screen"}, before)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("carol-screen-%d", i)
		_, err := m.OnTrackPublished(Track{ID: id, RoomID: "R1", Owner: "carol", Kind: KindScreenShare})
		require.NoError(t, err)
		_, err = m.OnTrackUnpublished("R1", id)
		require.NoError(t, err)
		require.Equal(t, before, viewIDs(m.ComputeSubscriptionView("R1", "alice")))
	}

	t.Run("removing a track keeps relative order", func(t *testing.T) {
		_, err := m.OnTrackUnpublished("R1", "dave-cam")
		require.NoError(t, err)
		require.Equal(t, []string{"bob/camera", "carol/camera", "dave/camera", "bob-screen"}, viewIDs(m.ComputeSubscriptionView("R1", "alice")))
	})

	t.Run("late joiner goes last", func(t *testing.T) {
		_, err := m.Join("R1", "eve", true)
		require.NoError(t, err)
		require.Equal(t, []string{"bob/camera", "carol/camera", "dave/camera", "bob-screen", "eve/camera"}, viewIDs(m.ComputeSubscriptionView("R1", "alice")))
	})
}

func TestSubscribePermission(t *testing.T) {
	m := NewManager()
	_, err := m.Join("R1", "alice", true)
	require.NoError(t, err)
	_, err = m.Join("R1", "viewer", false)
	require.NoError(t, err)

	upd, err := m.OnTrackPublished(Track{ID: "alice-cam", RoomID: "R1", Owner: "alice", Kind: KindCamera})
	require.NoError(t, err)
	require.Empty(t, upd.Subscribed)
	require.Empty(t, m.ComputeSubscriptionView("R1", "viewer"))
}

func TestLateJoinerSubscribesToLiveTracks(t *testing.T) {
	m := setupRoom(t, "alice")

	_, err := m.OnTrackPublished(Track{ID: "alice-mic", RoomID: "R1", Owner: "alice", Kind: KindAudio})
	require.NoError(t, err)
	_, err = m.OnTrackPublished(Track{ID: "alice-cam", RoomID: "R1", Owner: "alice", Kind: KindCamera})
	require.NoError(t, err)

	upd, err := m.Join("R1", "bob", true)
	require.NoError(t, err)
	require.Len(t, upd.Subscribed, 2)
	require.Equal(t, "alice-cam", upd.Subscribed[0].Track.ID)
	require.Equal(t, "alice-mic", upd.Subscribed[1].Track.ID)
}

func TestLeave(t *testing.T) {
	m := setupRoom(t, "alice", "bob")

	_, err := m.OnTrackPublished(Track{ID: "bob-cam", RoomID: "R1", Owner: "bob", Kind: KindCamera})
	require.NoError(t, err)
	_, err = m.OnTrackPublished(Track{ID: "alice-cam", RoomID: "R1", Owner: "alice", Kind: KindCamera})
	require.NoError(t, err)

	upd := m.Leave("R1", "bob")
	require.Equal(t, []Subscription{{Subscriber: "alice", Track: Track{ID: "bob-cam", RoomID: "R1", Owner: "bob", Kind: KindCamera, Seq: 2}}}, upd.Unsubscribed)
	require.Equal(t, map[string][]Track{"alice": {}}, upd.Views)
	require.Empty(t, m.SubscribedBy("R1", "alice-cam"))

	require.Empty(t, m.Leave("R1", "bob").Views)

	m.Leave("R1", "alice")
	require.Nil(t, m.Tracks("R1"))
	require.Nil(t, m.ComputeSubscriptionView("R1", "alice"))
}

func TestPublishErrors(t *testing.T) {
	m := setupRoom(t, "alice")

	_, err := m.OnTrackPublished(Track{ID: "x", RoomID: "R1", Owner: "alice", Kind: "hologram"})
	require.Error(t, err)

	_, err = m.OnTrackPublished(Track{RoomID: "R1", Owner: "alice", Kind: KindAudio})
	require.Error(t, err)

	_, err = m.OnTrackPublished(Track{ID: "x", RoomID: "R1", Owner: "nobody", Kind: KindAudio})
	require.ErrorIs(t, err, ErrUnknownParticipant)

	_, err = m.OnTrackPublished(Track{ID: "x", RoomID: "R2", Owner: "alice", Kind: KindAudio})
	require.ErrorIs(t, err, ErrUnknownParticipant)

	_, err = m.OnTrackPublished(Track{ID: "x", RoomID: "R1", Owner: "alice", Kind: KindAudio})
	require.NoError(t, err)
	_, err = m.OnTrackPublished(Track{ID: "x", RoomID: "R1", Owner: "alice", Kind: KindAudio})
	require.ErrorIs(t, err, ErrTrackExists)

	_, err = m.OnTrackUnpublished("R1", "missing")
	require.ErrorIs(t, err, ErrTrackNotFound)
}

func TestConcurrentRooms(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	n := 10
	errCh := make(chan error, n*4)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			roomID := fmt.Sprintf("room%d", i)
			for _, id := range []string{"alice", "bob"} {
				_, err := m.Join(roomID, id, true)
				errCh <- err
			}
			_, err := m.OnTrackPublished(Track{ID: "cam", RoomID: roomID, Owner: "alice", Kind: KindCamera})
			errCh <- err
			_, err = m.OnTrackUnpublished(roomID, "cam")
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestResync(t *testing.T) {
	m := setupRoom(t, "alice", "bob")

	_, err := m.OnTrackPublished(Track{ID: "bob-cam", RoomID: "R1", Owner: "bob", Kind: KindCamera})
	require.NoError(t, err)
	_, err = m.OnTrackPublished(Track{ID: "alice-cam", RoomID: "R1", Owner: "alice", Kind: KindCamera})
	require.NoError(t, err)

	upd, err := m.Resync("R1", "alice")
	require.NoError(t, err)
	require.Len(t, upd.Subscribed, 1)
	require.Equal(t, "bob-cam", upd.Subscribed[0].Track.ID)
	require.Equal(t, []string{"bob-cam"}, viewIDs(upd.Views["alice"]))

	_, err = m.Resync("R1", "nobody")
	require.ErrorIs(t, err, ErrUnknownParticipant)
}
