// Package capture bridges the capture collaborator (the process running
// wake-word detection and recording utterances) to the turn pipeline over
// a WebSocket.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceturn/pkg/protocol"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// Submitter starts a turn for an utterance. *voice.Pipeline implements it.
type Submitter interface {
	Submit(ctx context.Context, u voice.Utterance) (string, error)
}

// Peer is a connected capture client.
type Peer struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes a message to the peer.
func (p *Peer) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// Bridge manages capture connections.
type Bridge struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	submit Submitter
	spool  Spool
	logger *slog.Logger

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	accepted         atomic.Uint64
	rejected         atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSpool sets where inline recordings are written and which paths are
// accepted.
func WithSpool(s Spool) Option {
	return func(b *Bridge) { b.spool = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge creates a Bridge that hands utterances to submit.
func NewBridge(submit Submitter, opts ...Option) *Bridge {
	b := &Bridge{
		peers:  make(map[string]*Peer),
		submit: submit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "capture")
	return b
}

// Callbacks returns pipeline callbacks that forward listening signals to
// every capture peer.
func (b *Bridge) Callbacks() voice.Callbacks {
	return voice.Callbacks{
		OnResumeListening: b.ResumeListening,
		OnDeactivate:      b.Deactivate,
	}
}

// ResumeListening tells capture peers to listen for the next utterance.
func (b *Bridge) ResumeListening() {
	if msg, err := protocol.NewResumeListeningMessage(); err == nil {
		b.Broadcast(msg)
	}
}

// Deactivate tells capture peers the conversation is over.
func (b *Bridge) Deactivate() {
	if msg, err := protocol.NewDeactivateMessage(); err == nil {
		b.Broadcast(msg)
	}
}

// RegisterRoutes registers the capture WebSocket routes on a Fiber app
func (b *Bridge) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/capture", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/capture", websocket.New(b.handlePeer))
	app.Get("/ws/capture/:id", websocket.New(b.handlePeer))
}

func (b *Bridge) handlePeer(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}
	peer := &Peer{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	b.mu.Lock()
	b.peers[id] = peer
	count := len(b.peers)
	b.mu.Unlock()
	b.logger.Info("capture peer connected", "peer", id, "peers", count)

	defer func() {
		b.mu.Lock()
		if b.peers[id] == peer {
			delete(b.peers, id)
		}
		count := len(b.peers)
		b.mu.Unlock()
		b.logger.Info("capture peer disconnected", "peer", id, "peers", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			b.logger.Debug("capture read ended", "peer", id, "error", err)
			return
		}

		peer.mu.Lock()
		peer.LastSeen = time.Now()
		peer.mu.Unlock()

		b.messagesReceived.Add(1)
		b.handleMessage(peer, data)
	}
}

func (b *Bridge) handleMessage(peer *Peer, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		b.logger.Debug("unparseable capture message", "peer", peer.ID, "error", err)
		b.replyError(peer, err)
		return
	}

	switch msg.Type {
	case protocol.TypeUtterance:
		b.handleUtterance(peer, msg)

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		if pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli()); err == nil {
			b.send(peer, pong)
		}

	default:
		b.logger.Debug("ignoring capture message", "peer", peer.ID, "type", msg.Type)
	}
}

func (b *Bridge) handleUtterance(peer *Peer, msg *protocol.Message) {
	data, err := msg.GetUtteranceData()
	if err != nil {
		b.replyError(peer, err)
		return
	}

	path, err := b.resolve(data)
	if err != nil {
		b.logger.Warn("utterance refused", "peer", peer.ID, "error", err)
		b.replyError(peer, err)
		return
	}

	turnID, err := b.submit.Submit(context.Background(), voice.Utterance{ID: data.ID, Path: path})
	switch {
	case errors.Is(err, voice.ErrBusy):
		b.rejected.Add(1)
		if reply, err := protocol.NewBusyMessage(data.ID); err == nil {
			b.send(peer, reply)
		}
	case err != nil:
		b.replyError(peer, err)
	default:
		b.accepted.Add(1)
		if reply, err := protocol.NewAcceptedMessage(turnID); err == nil {
			b.send(peer, reply)
		}
	}
}

// resolve turns an utterance message into a local recording path.
func (b *Bridge) resolve(u *protocol.UtteranceData) (string, error) {
	if !u.Inline() {
		return b.spool.Accept(u.Path)
	}
	if u.Format != "" && u.Format != "wav" {
		return "", errors.New("capture: inline audio must be wav, got " + u.Format)
	}
	wav, err := u.DecodeAudio()
	if err != nil {
		return "", err
	}
	return b.spool.Write(wav)
}

func (b *Bridge) replyError(peer *Peer, err error) {
	if msg, merr := protocol.NewErrorMessage(err.Error()); merr == nil {
		b.send(peer, msg)
	}
}

func (b *Bridge) send(peer *Peer, msg *protocol.Message) {
	b.messagesSent.Add(1)
	if err := peer.Send(msg); err != nil {
		b.logger.Debug("capture send failed", "peer", peer.ID, "error", err)
	}
}

// Broadcast sends a message to every connected peer.
func (b *Bridge) Broadcast(msg *protocol.Message) {
	b.mu.RLock()
	peers := make([]*Peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.RUnlock()

	for _, p := range peers {
		b.send(p, msg)
	}
}

// PeerCount returns the number of connected capture peers.
func (b *Bridge) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Stats contains bridge statistics
type Stats struct {
	Peers            int    `json:"peers"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Accepted         uint64 `json:"accepted"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns bridge statistics
func (b *Bridge) GetStats() Stats {
	return Stats{
		Peers:            b.PeerCount(),
		MessagesReceived: b.messagesReceived.Load(),
		MessagesSent:     b.messagesSent.Load(),
		Accepted:         b.accepted.Load(),
		Rejected:         b.rejected.Load(),
	}
}

// PeerInfo describes a connected peer
type PeerInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetPeerInfos returns info about all connected peers
func (b *Bridge) GetPeerInfos() []PeerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]PeerInfo, 0, len(b.peers))
	for _, p := range b.peers {
		p.mu.Lock()
		infos = append(infos, PeerInfo{ID: p.ID, Connected: p.Connected, LastSeen: p.LastSeen})
		p.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers capture management routes
func (b *Bridge) RegisterAPIRoutes(api fiber.Router) {
	group := api.Group("/capture")

	group.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"peers": b.GetPeerInfos(),
			"count": b.PeerCount(),
		})
	})

	group.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(b.GetStats())
	})
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, u voice.Utterance) (string, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, u voice.Utterance) (string, error) {
	return f(ctx, u)
}
