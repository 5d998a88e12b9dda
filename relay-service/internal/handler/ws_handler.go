package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/pkg/middleware"
	"github.com/weiawesome/wes-dm-relay/pkg/response"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/audit"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/service"
)

type WSHandler struct {
	delivery       service.DeliveryService
	authMiddleware *middleware.AuthMiddleware
	upgrader       websocket.Upgrader
	wsCfg          config.WebSocketConfig
}

func NewWSHandler(delivery service.DeliveryService, authMiddleware *middleware.AuthMiddleware, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		delivery:       delivery,
		authMiddleware: authMiddleware,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(wsCfg.AllowedOrigins),
		},
		wsCfg: wsCfg,
	}
}

// checkOrigin allows every origin when none are configured.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:username", h.HandleWebSocket)
}

// HandleWebSocket handles GET /ws/:username. The token must belong to the
// username in the path.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	username := c.Param("username")

	caller, err := h.authMiddleware.Authenticate(c)
	if err != nil {
		audit.Log(c.Request.Context(), audit.ActionConnectRejected, username, "websocket handshake rejected: "+err.Error())
		response.Unauthorized(c, err.Error())
		return
	}
	if caller != username {
		audit.Log(c.Request.Context(), audit.ActionConnectRejected, caller, "websocket handshake rejected: username mismatch")
		response.Forbidden(c, "token does not belong to this user")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := pkglog.Ctx(c.Request.Context())
		l.Warn().Err(err).Str(pkglog.FieldUsername, username).Msg("websocket upgrade failed")
		return
	}

	// The request context ends with this handler; the connection outlives it.
	ctx := pkglog.WithLogger(context.Background(), pkglog.Ctx(c.Request.Context()))
	ctx = pkglog.WithUsername(ctx, username)

	client := hub.NewClient(username, conn, h.wsCfg)
	session, err := h.delivery.Connect(ctx, client)
	if err != nil {
		return
	}

	go client.PingLoop()
	go h.readLoop(ctx, client, session)
}

func (h *WSHandler) readLoop(ctx context.Context, client *hub.Client, session *service.Conn) {
	defer h.delivery.Disconnect(ctx, session)

	client.ReadPump(func(message []byte) {
		h.handleMessage(ctx, client, session, message)
	})
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, session *service.Conn, message []byte) {
	var in domain.InboundMessage
	if err := json.Unmarshal(message, &in); err != nil {
		client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	_, err := h.delivery.Send(ctx, session, in.Recipient(), in.Text)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidMessage):
		client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error()))
	case errors.Is(err, service.ErrBacklogFull):
		client.Send(domain.NewErrorMessage(domain.ErrCodeBacklogFull, err.Error()))
	case errors.Is(err, service.ErrConnectionClosed):
		client.Close()
	default:
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Str(pkglog.FieldToUser, in.Recipient()).Msg("send failed")
		client.Send(domain.NewErrorMessage(domain.ErrCodeInternalError, "message could not be stored"))
	}
}
