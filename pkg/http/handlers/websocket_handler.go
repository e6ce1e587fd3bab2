package handlers

import (
	"errors"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/pkg/auth"
	"github.com/jgirmay/presencehub/pkg/http/middleware"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/services/presence"
	"github.com/jgirmay/presencehub/pkg/services/realtime"
)

// WebSocketHandler upgrades authenticated requests into registered channels
type WebSocketHandler struct {
	registry *realtime.ConnectionRegistry
	tracker  *presence.Tracker
	authn    auth.Authenticator
	cfg      realtime.ChannelConfig
	upgrader gorillaws.Upgrader
	logger   *logging.Logger
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(
	registry *realtime.ConnectionRegistry,
	tracker *presence.Tracker,
	authn auth.Authenticator,
	cfg realtime.ChannelConfig,
	logger *logging.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		tracker:  tracker,
		authn:    authn,
		cfg:      cfg,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logging.OrNop(logger).Named("websocket"),
	}
}

// ServeHTTP handles GET /ws. Identity is resolved before the upgrade so a
// rejected request never produces a channel.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authn.Authenticate(r)
	if err != nil {
		h.logger.Info("websocket auth failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		code := "INVALID_TOKEN"
		if errors.Is(err, auth.ErrMissingToken) {
			code = "MISSING_TOKEN"
		}
		middleware.Unauthorized(w, code)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("failed to upgrade connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	ch := realtime.NewWSChannel(ws, userID, h.cfg)
	h.registry.Connect(userID, ch)
	defer func() {
		h.registry.Disconnect(userID, ch)
		_ = ch.Close()
	}()

	h.tracker.MarkActive(userID)
	h.reply(userID, ch, realtime.ConnectedEnvelope(userID))

	go ch.WritePump()

	h.logger.Info("client connected",
		zap.String("user_id", userID),
		zap.String("channel_id", ch.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)
	h.readLoop(userID, ch)
}

func (h *WebSocketHandler) readLoop(userID string, ch *realtime.WSChannel) {
	for {
		data, err := ch.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				h.logger.Info("client read error", zap.String("channel_id", ch.ID()), zap.Error(err))
			}
			return
		}
		h.processMessage(userID, ch, data)
	}
}

// processMessage handles one inbound frame. Unknown or malformed frames are
// logged and dropped; the connection stays open.
func (h *WebSocketHandler) processMessage(userID string, ch realtime.Channel, data []byte) {
	in, err := realtime.DecodeInbound(data)
	if err != nil {
		h.logger.Debug("malformed frame", zap.String("channel_id", ch.ID()), zap.Error(err))
		return
	}

	switch in.Type {
	case realtime.TypePing:
		h.tracker.MarkActive(userID)
		h.reply(userID, ch, realtime.PongEnvelope())

	case realtime.TypeSubscribe:
		if in.Channel == "" {
			h.logger.Debug("subscribe without channel", zap.String("channel_id", ch.ID()))
			return
		}
		h.tracker.MarkActive(userID)
		h.reply(userID, ch, realtime.SubscribedEnvelope(in.Channel))

	case realtime.TypeHeartbeat:
		h.tracker.MarkActive(userID)

	default:
		h.logger.Debug("unknown frame type", zap.String("channel_id", ch.ID()), zap.String("type", in.Type))
	}
}

// reply queues env on ch, pruning the channel if it cannot take it.
func (h *WebSocketHandler) reply(userID string, ch realtime.Channel, env realtime.Envelope) {
	msg, err := realtime.Encode(env)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if err := ch.Send(msg); err != nil {
		h.logger.Info("reply failed, closing channel", zap.String("channel_id", ch.ID()), zap.Error(err))
		h.registry.Disconnect(userID, ch)
		_ = ch.Close()
	}
}
