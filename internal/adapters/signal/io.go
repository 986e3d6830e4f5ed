package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// envelope is the inbound message frame: a type tag plus, for publishes,
// the recognition payload fields flattened alongside it.
type envelope struct {
	Type string `json:"type"`
	domain.ClientPublish
}

func (e *envelope) decode(data []byte) error {
	return json.Unmarshal(data, e)
}

func (ctl *WSController) writePump(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, id domain.RoomID, sub *subscriber, done func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("room", string(id)).Msg("readPump closing")
		done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sub.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("room", string(id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleMessage(id, sub, data)
		}
	}
}

func (ctl *WSController) sendJSON(sub *subscriber, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = sub.TrySend(b)
}
