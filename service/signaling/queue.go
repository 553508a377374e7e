// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"sync"

	"github.com/Huk9uri/dawata-roomd/service/tracks"
)

type jobType int

const (
	jobJoin jobType = iota
	jobLeave
	jobPublish
	jobUnpublish
	jobResync
)

type job struct {
	typ          jobType
	roomID       string
	identity     string
	canSubscribe bool
	track        tracks.Track
	// session is the originator of publish jobs and the target of resync
	// jobs.
	session *Session
}

// jobQueue is an unbounded FIFO. Pushing never blocks so it can be done
// while holding registry locks.
type jobQueue struct {
	mut    sync.Mutex
	jobs   []job
	notify chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *jobQueue) push(j job) {
	q.mut.Lock()
	q.jobs = append(q.jobs, j)
	q.mut.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the oldest job, waiting for one until stopCh is closed.
func (q *jobQueue) pop(stopCh <-chan struct{}) (job, bool) {
	for {
		q.mut.Lock()
		if len(q.jobs) > 0 {
			j := q.jobs[0]
			q.jobs[0] = job{}
			q.jobs = q.jobs[1:]
			q.mut.Unlock()
			return j, true
		}
		q.mut.Unlock()

		select {
		case <-q.notify:
		case <-stopCh:
			return job{}, false
		}
	}
}
