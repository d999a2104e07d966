package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// CheckOrigin decides whether the upgrade is accepted. Nil accepts all.
	CheckOrigin func(r *http.Request) bool
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *EventRateLimiter
	settings Settings
	upgrader websocket.Upgrader
	wg       conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, limiter *EventRateLimiter, s Settings) *SignalWSController {
	check := s.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}
	return &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		settings: s,
		upgrader: websocket.Upgrader{CheckOrigin: check},
	}
}

// WsSignalConn is the outbound half of one websocket. Frames are queued on
// send and written by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return domain.ErrBackpressure
	}
	return nil
}

// Close stops the pumps and closes the socket. Safe to call from any
// goroutine, more than once.
func (c *WsSignalConn) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

// Wait blocks until every pump started by the controller has returned.
func (ctl *SignalWSController) Wait() {
	ctl.wg.Wait()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := domain.ClientToken(c.GetString("client_token"))

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.ConnectionID(uuid.NewString())
	conn := newWsSignalConn(ws, ctl.settings.SendBuffer)
	ctl.Orch.Connect(id, client, conn)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", string(client)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.wg.Go(func() {
		defer cancel()
		ctl.writePump(ctx, id, conn)
	})
	ctl.wg.Go(func() {
		defer cancel()
		ctl.readPump(ctx, id, conn)
	})
}
