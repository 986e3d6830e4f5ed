package signal

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/app"
	"github.com/MRCCollective/Babbler/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSController handles the realtime channel for one room: display clients
// subscribe here, and the presenter's recognition client publishes here.
type WSController struct {
	Coord *app.Coordinator
	Hub   *Hub
}

func NewWSController(coord *app.Coordinator, hub *Hub) *WSController {
	return &WSController{Coord: coord, Hub: hub}
}

// HandleRoom upgrades the request and runs the read/write pumps. The room is
// checked gate-free before the upgrade so dead links fail with a 404.
func (ctl *WSController) HandleRoom(ctx context.Context, c *gin.Context) {
	rawID := c.Param("roomId")
	id, err := app.NormalizeRoomID(rawID)
	if err != nil || !ctl.Coord.RoomExists(rawID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("room", string(id)).Msg("new WS connection")

	sub, cleanup := ctl.Hub.Subscribe(id, ws)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, sub)
	ctl.readPump(ctx, id, sub, func() {
		cancel()
		cleanup()
	})
}

func (ctl *WSController) handleMessage(id domain.RoomID, sub *subscriber, data []byte) {
	var env envelope
	if err := env.decode(data); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "publishClientTranslation":
		ctl.Coord.PublishUpdate(string(id), env.ClientPublish)
	case "ping":
		ctl.sendJSON(sub, map[string]any{"type": "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message")
	}
}
