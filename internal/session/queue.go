package session

import (
	"sync"

	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Queue is the upcoming-track list a session plays from.
type Queue interface {
	Push(tracks ...protocol.Track)
	// Unshift puts a track at the head so it plays next.
	Unshift(track protocol.Track)
	Shift() (protocol.Track, bool)
	Len() int
	Tracks() []protocol.Track
	Clear()
}

// SliceQueue is a Queue safe for concurrent use.
type SliceQueue struct {
	mu     sync.RWMutex
	tracks []protocol.Track
}

var _ Queue = (*SliceQueue)(nil)

func NewSliceQueue(tracks ...protocol.Track) *SliceQueue {
	return &SliceQueue{tracks: append([]protocol.Track(nil), tracks...)}
}

func (q *SliceQueue) Push(tracks ...protocol.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, tracks...)
}

func (q *SliceQueue) Unshift(track protocol.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append([]protocol.Track{track}, q.tracks...)
}

func (q *SliceQueue) Shift() (protocol.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return protocol.Track{}, false
	}
	track := q.tracks[0]
	q.tracks = q.tracks[1:]
	return track, true
}

func (q *SliceQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

func (q *SliceQueue) Tracks() []protocol.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]protocol.Track(nil), q.tracks...)
}

func (q *SliceQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
}
