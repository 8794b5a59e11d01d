// Package events defines the lifecycle signals emitted by the runtime and
// the bus that delivers them.
package events

import (
	"github.com/Ryuzii/FerraEura/internal/protocol"
)

// Event is implemented by every signal type. The set is closed.
type Event interface {
	event()
}

type NodeConnecting struct {
	Node    string
	Attempt int
}

type NodeReady struct {
	Node      string
	SessionID string
	Resumed   bool
}

// NodeDisconnected is emitted when a node socket closes or a dial fails.
// Err is nil for a deliberate disconnect.
type NodeDisconnected struct {
	Node         string
	Err          error
	Reconnecting bool
}

type NodeError struct {
	Node string
	Err  error
}

type NodeAdded struct {
	Node string
}

type NodeRemoved struct {
	Node string
}

// NoHealthyNode is emitted when a session could not be moved off a failed
// node. The session is left unbound.
type NoHealthyNode struct {
	GuildID    string
	FailedNode string
}

type SessionCreated struct {
	GuildID string
	Node    string
}

type SessionDestroyed struct {
	GuildID string
}

type SessionMigrated struct {
	GuildID string
	From    string
	To      string
}

type SessionError struct {
	GuildID string
	Err     error
}

type TrackStarted struct {
	GuildID string
	Track   protocol.Track
}

type TrackEnded struct {
	GuildID string
	Track   protocol.Track
	Reason  protocol.TrackEndReason
}

type TrackException struct {
	GuildID   string
	Track     *protocol.Track
	Exception protocol.Exception
}

type TrackStuck struct {
	GuildID   string
	Track     *protocol.Track
	Threshold int64
}

type QueueEnded struct {
	GuildID string
	Last    *protocol.Track
}

type SocketClosed struct {
	GuildID  string
	Code     int
	Reason   string
	ByRemote bool
}

type PlayerUpdated struct {
	GuildID   string
	Position  int64
	Ping      int
	Connected bool
}

func (NodeConnecting) event()   {}
func (NodeReady) event()        {}
func (NodeDisconnected) event() {}
func (NodeError) event()        {}
func (NodeAdded) event()        {}
func (NodeRemoved) event()      {}
func (NoHealthyNode) event()    {}
func (SessionCreated) event()   {}
func (SessionDestroyed) event() {}
func (SessionMigrated) event()  {}
func (SessionError) event()     {}
func (TrackStarted) event()     {}
func (TrackEnded) event()       {}
func (TrackException) event()   {}
func (TrackStuck) event()       {}
func (QueueEnded) event()       {}
func (SocketClosed) event()     {}
func (PlayerUpdated) event()    {}
