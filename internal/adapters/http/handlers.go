package http

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/adapters/signal"
	"github.com/MRCCollective/Babbler/internal/app"
	"github.com/MRCCollective/Babbler/internal/config"
	"github.com/MRCCollective/Babbler/internal/domain"
	"github.com/MRCCollective/Babbler/internal/metrics"
	"github.com/MRCCollective/Babbler/internal/speech"
)

const accessCookieTTL = 12 * time.Hour

// Handlers is the control surface: room lifecycle, PIN gating and the
// speech-credential pass-through.
type Handlers struct {
	Coord    *app.Coordinator
	Speech   *speech.Provider
	Metrics  *metrics.Metrics
	PinLimit *signal.PinRateLimiter

	cfg     *config.Config
	cookies *securecookie.SecureCookie
}

func NewHandlers(coord *app.Coordinator, sp *speech.Provider, m *metrics.Metrics, cfg *config.Config) *Handlers {
	// Sign-only codec: the cookie value is already an opaque token, it just
	// must not be forgeable.
	hashKey := sha256.Sum256([]byte(cfg.CookieSecret))
	return &Handlers{
		Coord:    coord,
		Speech:   sp,
		Metrics:  m,
		PinLimit: signal.NewPinRateLimiter(10, time.Minute),
		cfg:      cfg,
		cookies:  securecookie.New(hashKey[:], nil),
	}
}

func accessCookieName(roomID string) string {
	return "babbler_room_" + roomID
}

// respondError maps domain sentinels onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrRoomIDSpaceExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, speech.ErrFetchFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// CreateRoom handles POST /api/rooms.
func (h *Handlers) CreateRoom(c *gin.Context) {
	creds, err := h.Coord.CreateRoom()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomId":  creds.RoomID,
		"pin":     creds.PIN,
		"joinUrl": h.joinURL(c, creds.RoomID),
	})
}

// ListRooms handles GET /api/rooms.
func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Coord.ListRooms()})
}

// AccessInfo handles GET /api/rooms/:roomId/access.
func (h *Handlers) AccessInfo(c *gin.Context) {
	creds, err := h.Coord.GetRoomAccessInfo(c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId":  creds.RoomID,
		"pin":     creds.PIN,
		"joinUrl": h.joinURL(c, creds.RoomID),
	})
}

// VerifyPin handles POST /api/rooms/:roomId/verify-pin. On a match it issues
// the signed, httpOnly access cookie bound to the room's access token.
func (h *Handlers) VerifyPin(c *gin.Context) {
	if !h.PinLimit.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid pin"})
		return
	}
	roomID := c.Param("roomId")
	token, ok, err := h.Coord.VerifyPin(roomID, req.PIN)
	if err != nil {
		respondError(c, err)
		return
	}
	if ok {
		name := accessCookieName(roomID)
		encoded, encErr := h.cookies.Encode(name, token)
		if encErr != nil {
			log.Error().Err(encErr).Str("module", "adapters.http").Msg("access cookie encode")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cookie issue failed"})
			return
		}
		secure := c.Request.TLS != nil
		c.SetCookie(name, encoded, int(accessCookieTTL.Seconds()), "/", "", secure, true)
	}
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

// Status handles GET /api/rooms/:roomId/status.
func (h *Handlers) Status(c *gin.Context) {
	st, err := h.Coord.GetStatus(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Start handles POST /api/rooms/:roomId/start.
func (h *Handlers) Start(c *gin.Context) {
	var req struct {
		SourceLanguage string `json:"sourceLanguage"`
		TargetLanguage string `json:"targetLanguage"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional, defaults to room languages
	st, err := h.Coord.StartSession(c.Request.Context(), c.Param("roomId"), req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Metrics.IncSessionsStarted()
	c.JSON(http.StatusOK, st)
}

// SetLanguage handles POST /api/rooms/:roomId/language.
func (h *Handlers) SetLanguage(c *gin.Context) {
	var req struct {
		TargetLanguage string `json:"targetLanguage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.Coord.SetTargetLanguage(c.Param("roomId"), req.TargetLanguage); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stop handles POST /api/rooms/:roomId/stop.
func (h *Handlers) Stop(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional
	if err := h.Coord.StopSession(c.Request.Context(), c.Param("roomId"), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	h.Metrics.IncSessionsStopped()
	c.Status(http.StatusNoContent)
}

// SpeechToken handles GET /api/speech/token.
func (h *Handlers) SpeechToken(c *gin.Context) {
	cred, err := h.Speech.Token(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cred)
}

// Languages handles GET /api/languages.
func (h *Handlers) Languages(c *gin.Context) {
	targets := domain.SupportedTargets()
	out := make([]gin.H, 0, len(targets))
	for _, l := range targets {
		out = append(out, gin.H{"tag": string(l), "name": domain.DisplayName(l)})
	}
	c.JSON(http.StatusOK, gin.H{"languages": out})
}

// DisplayPage serves the display client for a room, gated by the access
// cookie. This path is gate-free in the coordinator so page loads never
// contend with room operations.
func (h *Handlers) DisplayPage(c *gin.Context) {
	roomID := c.Param("roomId")
	if !h.Coord.RoomExists(roomID) {
		c.String(http.StatusNotFound, "room not found")
		return
	}
	if h.hasAccess(c, roomID) {
		c.File(h.cfg.StaticPath + "/display.html")
		return
	}
	c.File(h.cfg.StaticPath + "/pin.html")
}

func (h *Handlers) hasAccess(c *gin.Context, roomID string) bool {
	name := accessCookieName(roomID)
	raw, err := c.Cookie(name)
	if err != nil {
		return false
	}
	var token string
	if err := h.cookies.Decode(name, raw, &token); err != nil {
		return false
	}
	return h.Coord.HasDisplayAccess(roomID, token)
}

func (h *Handlers) joinURL(c *gin.Context, roomID string) string {
	base := h.cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/display/" + roomID
}
