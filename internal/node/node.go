// Package node supervises the control connection to one audio node: the
// socket handshake, resume negotiation, inbound dispatch and reconnects.
package node

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/rest"
	"github.com/gorilla/websocket"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	AwaitingReady
	Ready
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingReady:
		return "awaiting-ready"
	case Ready:
		return "ready"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type Options struct {
	Name     string
	Host     string
	Port     int
	Secure   bool
	Password string
	Regions  []string
	// Version selects the protocol revision, "v4" unless the node is a
	// legacy one that negotiates resuming with a resume key.
	Version string

	Resume        bool
	ResumeKey     string
	ResumeTimeout time.Duration

	ReconnectDelay time.Duration
	ReconnectLimit int

	// HandshakeTimeout bounds the socket dial and the info fetch that
	// follows it.
	HandshakeTimeout time.Duration
	// PingInterval is the cadence of socket pings used to sample round
	// trip time. Zero disables pinging.
	PingInterval time.Duration
	PingHistory  int

	InsecureSkipVerify bool
	RestTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = o.Host
	}
	if o.Port == 0 {
		o.Port = 2333
	}
	if o.Version == "" {
		o.Version = "v4"
	}
	if o.ResumeTimeout == 0 {
		o.ResumeTimeout = 60 * time.Second
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.PingHistory == 0 {
		o.PingHistory = 10
	}
	return o
}

func (o Options) legacy() bool {
	return o.Version != "v4"
}

// Identity is sent with every handshake.
type Identity struct {
	UserID     string
	ClientName string
}

// Listener receives everything a node reports to its owner. NodeFrame is
// called from the socket reader, in arrival order.
type Listener interface {
	NodeReady(n *Node, resumed bool)
	// NodeDisconnected is called when the socket closes or a dial fails.
	// err is nil when Disconnect was called.
	NodeDisconnected(n *Node, err error, reconnecting bool)
	NodeFrame(n *Node, frame protocol.Frame)
}

var ErrDestroyed = errors.New("node destroyed")

type Node struct {
	opts     Options
	identity Identity
	rest     *rest.Client
	dialer   *websocket.Dialer
	listener Listener
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	gen       uint64
	conn      *websocket.Conn
	stop      chan struct{}
	sessionID string
	info      *protocol.Info
	stats     protocol.Stats
	statsAt   time.Time
	pings     []float64
	pingNext  int
	lastPing  float64
	attempts  int
	timer     *time.Timer
	destroyed bool
}

func New(opts Options, identity Identity, listener Listener) *Node {
	opts = opts.withDefaults()
	if listener == nil {
		listener = nopListener{}
	}

	scheme := "http"
	if opts.Secure {
		scheme = "https"
	}

	return &Node{
		opts:     opts,
		identity: identity,
		rest: rest.New(rest.Config{
			BaseURL:            fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port),
			Password:           opts.Password,
			Version:            opts.Version,
			Timeout:            opts.RestTimeout,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		},
		listener: listener,
		logger:   slog.Default().With("component", "node", "node", opts.Name),
		pings:    make([]float64, 0, opts.PingHistory),
	}
}

func (n *Node) socketURL() string {
	scheme := "ws"
	if n.opts.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/%s/websocket", scheme, n.opts.Host, n.opts.Port, n.opts.Version)
}

// Connect starts connecting in the background. It does nothing if the node
// is already connected or connecting, or has been destroyed. Failures are
// reported to the listener, not returned.
func (n *Node) Connect() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return
	}
	switch n.state {
	case Ready, Connecting, AwaitingReady:
		return
	}
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.startDialLocked()
}

func (n *Node) startDialLocked() {
	n.state = Connecting
	n.gen++
	go n.dial(n.gen, n.sessionID)
}

func (n *Node) handshakeHeader(sessionID string) http.Header {
	header := http.Header{}
	header.Set("Authorization", n.opts.Password)
	header.Set("User-Id", n.identity.UserID)
	header.Set("Client-Name", n.identity.ClientName)

	// Resume identifiers only make sense once there is a session to resume.
	if n.opts.Resume && sessionID != "" {
		if n.opts.legacy() {
			if n.opts.ResumeKey != "" {
				header.Set("Resume-Key", n.opts.ResumeKey)
			}
		} else {
			header.Set("Session-Id", sessionID)
		}
	}
	return header
}

func (n *Node) dial(gen uint64, sessionID string) {
	n.logger.Debug("dialing node", "url", n.socketURL(), "resuming", sessionID != "")

	ctx, cancel := context.WithTimeout(context.Background(), n.opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := n.dialer.DialContext(ctx, n.socketURL(), n.handshakeHeader(sessionID))
	if err != nil {
		n.closed(gen, fmt.Errorf("failed to dial node: %w", err))
		return
	}

	n.mu.Lock()
	if n.gen != gen || n.destroyed {
		n.mu.Unlock()
		_ = conn.Close()
		return
	}
	stop := make(chan struct{})
	n.conn = conn
	n.stop = stop
	n.state = AwaitingReady
	n.mu.Unlock()

	n.logger.Info("node socket open")

	conn.SetPongHandler(func(appData string) error {
		sent, err := strconv.ParseInt(appData, 10, 64)
		if err == nil {
			n.recordPing(float64(time.Since(time.Unix(0, sent)).Microseconds()) / 1000)
		}
		return nil
	})

	go n.fetchInfo(gen)
	go n.heartbeat(conn, stop)
	n.readLoop(gen, conn)
}

// fetchInfo fails open: a node that cannot report its info still serves
// players.
func (n *Node) fetchInfo(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), n.opts.HandshakeTimeout)
	defer cancel()

	info, err := n.rest.Info(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return
	}
	if err != nil {
		n.logger.Warn("failed to fetch node info", "error", err)
		n.info = nil
		return
	}
	n.info = info
}

func (n *Node) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	if n.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(n.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			payload := strconv.FormatInt(time.Now().UnixNano(), 10)
			deadline := time.Now().Add(n.opts.HandshakeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte(payload), deadline); err != nil {
				n.logger.Debug("failed to ping node", "error", err)
				return
			}
		}
	}
}

func (n *Node) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.closed(gen, err)
			return
		}
		n.handle(gen, data)
	}
}

func (n *Node) handle(gen uint64, data []byte) {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		n.logger.Warn("dropping frame", "error", err)
		return
	}

	switch frame.Op {
	case protocol.OpStats:
		var stats protocol.Stats
		if err := frame.Decode(&stats); err != nil {
			n.logger.Warn("dropping stats frame", "error", err)
			return
		}
		n.mu.Lock()
		n.stats = stats
		n.statsAt = time.Now()
		if stats.Ping != nil {
			n.recordPingLocked(*stats.Ping)
		}
		n.mu.Unlock()

	case protocol.OpReady:
		var ready protocol.Ready
		if err := frame.Decode(&ready); err != nil || ready.SessionID == "" {
			n.logger.Warn("dropping ready frame without session id", "error", err)
			return
		}
		n.mu.Lock()
		if n.gen != gen {
			n.mu.Unlock()
			return
		}
		n.sessionID = ready.SessionID
		n.state = Ready
		n.attempts = 0
		n.mu.Unlock()

		n.rest.SetSessionID(ready.SessionID)
		n.logger.Info("node ready", "sessionID", ready.SessionID, "resumed", ready.Resumed)
		go n.ready(ready.Resumed)

	case protocol.OpEvent, protocol.OpPlayerUpdate:
		n.listener.NodeFrame(n, frame)

	default:
		n.logger.Debug("dropping frame with unknown op", "op", frame.Op)
	}
}

// ready enables resuming before the owner replays sessions onto the node.
func (n *Node) ready(resumed bool) {
	if n.opts.Resume {
		ctx, cancel := context.WithTimeout(context.Background(), n.opts.HandshakeTimeout)
		if err := n.configureResuming(ctx); err != nil {
			n.logger.Warn("failed to enable resuming", "error", err)
		}
		cancel()
	}
	n.listener.NodeReady(n, resumed)
}

func (n *Node) configureResuming(ctx context.Context) error {
	timeout := int(n.opts.ResumeTimeout / time.Second)
	update := protocol.SessionUpdate{Timeout: timeout}
	if n.opts.legacy() {
		update.ResumingKey = n.opts.ResumeKey
	} else {
		update.Resuming = protocol.Ptr(true)
	}
	return n.rest.UpdateSession(ctx, update)
}

// closed handles the end of the connection with generation gen.
func (n *Node) closed(gen uint64, err error) {
	n.mu.Lock()
	if n.gen != gen || n.destroyed {
		n.mu.Unlock()
		return
	}
	n.gen++
	n.teardownLocked()
	n.state = Disconnected

	reconnecting := false
	if n.attempts < n.opts.ReconnectLimit {
		n.attempts++
		n.state = Reconnecting
		reconnecting = true
		next := n.gen
		n.timer = time.AfterFunc(n.opts.ReconnectDelay, func() { n.reconnect(next) })
	}
	attempts := n.attempts
	n.mu.Unlock()

	if reconnecting {
		n.logger.Warn("node disconnected, reconnecting", "error", err, "attempt", attempts, "delay", n.opts.ReconnectDelay)
	} else {
		n.logger.Error("node disconnected, giving up", "error", err, "attempts", attempts)
	}
	n.listener.NodeDisconnected(n, err, reconnecting)
}

func (n *Node) reconnect(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.destroyed || n.gen != gen || n.state != Reconnecting {
		return
	}
	n.timer = nil
	n.startDialLocked()
}

func (n *Node) teardownLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if n.stop != nil {
		close(n.stop)
		n.stop = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}

// Disconnect closes the socket and cancels any pending reconnect. The
// listener is told so sessions can move elsewhere. Connect may be called
// again later.
func (n *Node) Disconnect() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	active := n.state != Disconnected
	n.gen++
	n.teardownLocked()
	n.state = Disconnected
	n.attempts = 0
	n.mu.Unlock()

	if active {
		n.logger.Info("node disconnected by client")
		n.listener.NodeDisconnected(n, nil, false)
	}
}

// Destroy closes the node for good. No signal is emitted.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	n.gen++
	n.teardownLocked()
	n.state = Disconnected
	n.mu.Unlock()

	n.rest.Close()
	n.logger.Info("node destroyed")
}

func (n *Node) recordPing(ms float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recordPingLocked(ms)
}

func (n *Node) recordPingLocked(ms float64) {
	n.lastPing = ms
	if len(n.pings) < cap(n.pings) {
		n.pings = append(n.pings, ms)
		return
	}
	n.pings[n.pingNext] = ms
	n.pingNext = (n.pingNext + 1) % len(n.pings)
}

func (n *Node) Name() string {
	return n.opts.Name
}

func (n *Node) Options() Options {
	return n.opts
}

func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Info is nil until the info fetch succeeds.
func (n *Node) Info() *protocol.Info {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

func (n *Node) Stats() protocol.Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

func (n *Node) StatsAt() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.statsAt
}

func (n *Node) Regions() []string {
	return append([]string(nil), n.opts.Regions...)
}

func (n *Node) HasRegion(region string) bool {
	for _, r := range n.opts.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// Ping is the latest round trip sample in milliseconds.
func (n *Node) Ping() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastPing
}

func (n *Node) AveragePing() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.pings) == 0 {
		return 0
	}
	var sum float64
	for _, p := range n.pings {
		sum += p
	}
	return sum / float64(len(n.pings))
}

// PingHistory returns the retained samples, oldest first.
func (n *Node) PingHistory() []float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	history := make([]float64, 0, len(n.pings))
	if len(n.pings) < cap(n.pings) {
		return append(history, n.pings...)
	}
	history = append(history, n.pings[n.pingNext:]...)
	return append(history, n.pings[:n.pingNext]...)
}

func (n *Node) ReconnectAttempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attempts
}

func (n *Node) Rest() *rest.Client {
	return n.rest
}

func (n *Node) UpdatePlayer(ctx context.Context, guildID string, patch protocol.PlayerPatch) (*protocol.Player, error) {
	if n.isDestroyed() {
		return nil, ErrDestroyed
	}
	return n.rest.UpdatePlayer(ctx, guildID, patch)
}

func (n *Node) DestroyPlayer(ctx context.Context, guildID string) error {
	if n.isDestroyed() {
		return ErrDestroyed
	}
	return n.rest.DestroyPlayer(ctx, guildID)
}

func (n *Node) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResult, error) {
	return n.rest.LoadTracks(ctx, identifier)
}

func (n *Node) isDestroyed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.destroyed
}

type nopListener struct{}

func (nopListener) NodeReady(*Node, bool)               {}
func (nopListener) NodeDisconnected(*Node, error, bool) {}
func (nopListener) NodeFrame(*Node, protocol.Frame)     {}
