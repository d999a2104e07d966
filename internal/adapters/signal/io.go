package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnectionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(ctl.settings.WriteWait))
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.settings.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.settings.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the connection is
// disconnected from the coordinator.
func (ctl *SignalWSController) readPump(ctx context.Context, id domain.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(id)
		ctl.Limiter.Forget(id)
		c.Close()
	}()

	if ctl.settings.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.settings.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.settings.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(id, data)
	}
}

func (ctl *SignalWSController) handleSignal(id domain.ConnectionID, data []byte) {
	if !ctl.Limiter.Allow(id) {
		ctl.Orch.Throttle(id)
		return
	}
	if err := ctl.Orch.Dispatch(id, data); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("dispatch failed")
	}
}
