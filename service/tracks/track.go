// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package tracks

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownParticipant = errors.New("participant not found")
	ErrAlreadyJoined      = errors.New("participant already joined")
	ErrTrackExists        = errors.New("track already exists")
	ErrTrackNotFound      = errors.New("track not found")
	ErrSlotTaken          = errors.New("participant is already publishing a camera track")
)

type Kind string

const (
	KindAudio       Kind = "audio"
	KindCamera      Kind = "camera"
	KindScreenShare Kind = "screen_share"
)

func (k Kind) IsValid() error {
	switch k {
	case KindAudio, KindCamera, KindScreenShare:
		return nil
	default:
		return fmt.Errorf("unknown track kind %q", string(k))
	}
}

// Visual reports whether tracks of this kind occupy a slot in the grid.
func (k Kind) Visual() bool {
	return k == KindCamera || k == KindScreenShare
}

// Track is a published (or placeholder) media track.
type Track struct {
	ID     string `msgpack:"id" json:"id"`
	RoomID string `msgpack:"room_id" json:"room_id"`
	Owner  string `msgpack:"owner" json:"owner"`
	Kind   Kind   `msgpack:"kind" json:"kind"`
	// Seq orders slots. It's assigned at slot creation and never changes.
	Seq uint64 `msgpack:"seq" json:"seq"`
	// Placeholder is set for camera slots without a live publisher.
	Placeholder bool `msgpack:"placeholder" json:"placeholder"`
}

func placeholderID(owner string) string {
	return owner + "/camera"
}

// Subscription pairs a subscriber with a live track.
type Subscription struct {
	Subscriber string
	Track      Track
}

// Update describes the side effects of a mutation.
type Update struct {
	RoomID       string
	Subscribed   []Subscription
	Unsubscribed []Subscription
	// Views holds the new view of every participant whose view changed.
	Views map[string][]Track
}
