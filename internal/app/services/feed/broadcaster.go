package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domain "github.com/spredd-labs/developer-api/internal/app/domain/feed"
	"github.com/spredd-labs/developer-api/internal/app/metrics"
	"github.com/spredd-labs/developer-api/internal/app/system"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

var _ system.Service = (*Broadcaster)(nil)

// snapshotMessage is the websocket broadcast payload.
type snapshotMessage struct {
	Type          string              `json:"type"`
	DataTimestamp int64               `json:"data_timestamp"`
	Markets       []domain.MarketOdds `json:"markets"`
	Canary        domain.Canary       `json:"canary"`
}

const writeTimeout = 10 * time.Second

// errUnregistered reports a write to a connection the broadcaster does not
// track.
var errUnregistered = errors.New("connection not registered")

// wsClient guards one connection's write side. gorilla/websocket allows a
// single concurrent writer, so every frame to a registered connection must
// go through Send.
type wsClient struct {
	writeMu sync.Mutex
}

// Broadcaster pushes periodic market snapshots to connected websocket
// clients.
type Broadcaster struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]*wsClient
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewBroadcaster creates a lifecycle-managed snapshot broadcaster.
func NewBroadcaster(service *Service, interval time.Duration, log *logger.Logger) *Broadcaster {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("feed-broadcaster")
	}
	return &Broadcaster{
		service:  service,
		log:      log,
		interval: interval,
		clients:  make(map[*websocket.Conn]*wsClient),
	}
}

func (b *Broadcaster) Name() string { return "feed-broadcaster" }

// Register adds a connected client.
func (b *Broadcaster) Register(conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[conn] = &wsClient{}
	total := len(b.clients)
	b.mu.Unlock()

	metrics.FeedClientConnected(1)
	b.log.WithField("total", total).Info("feed client connected")
}

// Unregister removes a client.
func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	total := len(b.clients)
	b.mu.Unlock()

	if ok {
		metrics.FeedClientConnected(-1)
		b.log.WithField("total", total).Info("feed client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Send writes one text frame to a registered connection, holding that
// connection's write lock so broadcast and reply frames never interleave.
func (b *Broadcaster) Send(conn *websocket.Conn, payload []byte) error {
	b.mu.Lock()
	client, ok := b.clients[conn]
	b.mu.Unlock()
	if !ok {
		return errUnregistered
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				b.tick(runCtx)
			}
		}
	}()

	b.log.Info("feed broadcaster started")
	return nil
}

func (b *Broadcaster) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	cancel := b.cancel
	b.running = false
	b.cancel = nil
	clients := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		clients = append(clients, conn)
	}
	b.clients = make(map[*websocket.Conn]*wsClient)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, conn := range clients {
		_ = conn.Close()
		metrics.FeedClientConnected(-1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.log.Info("feed broadcaster stopped")
	return nil
}

func (b *Broadcaster) tick(ctx context.Context) {
	if b.ClientCount() == 0 {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()

	markets, err := b.service.Sync(syncCtx)
	if err != nil {
		b.log.WithError(err).Warn("feed broadcast sync failed")
		return
	}

	payload, err := json.Marshal(snapshotMessage{
		Type:          "market_snapshot",
		DataTimestamp: time.Now().UnixMilli(),
		Markets:       markets,
		Canary:        b.service.Canary(),
	})
	if err != nil {
		b.log.WithError(err).Warn("encode feed broadcast")
		return
	}

	b.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		clients = append(clients, conn)
	}
	b.mu.Unlock()

	for _, conn := range clients {
		if err := b.Send(conn, payload); err != nil {
			b.Unregister(conn)
			_ = conn.Close()
		}
	}
	metrics.RecordFeedBroadcast()
}
