package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftchat/delivery/internal/config"
	"github.com/driftchat/delivery/internal/domain"
	"github.com/driftchat/delivery/internal/hub"
	"github.com/driftchat/delivery/internal/repository"
	"github.com/driftchat/delivery/internal/service"
	"github.com/driftchat/delivery/pkg/jwt"
	"github.com/driftchat/delivery/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler authenticates websocket upgrades and dispatches client
// frames into the delivery pipeline.
type WSHandler struct {
	hub      *hub.Hub
	service  *service.DeliveryService
	verifier *jwt.Verifier
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc *service.DeliveryService, verifier *jwt.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
	}
}

// HandleWebSocket upgrades the connection. The access token comes from
// the "token" query parameter or a bearer Authorization header; an
// invalid token rejects the upgrade before any session state exists.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), claims.UserID, h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// HandleHealth reports liveness.
func (h *WSHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// handleMessage decodes one inbound frame and routes it. Bad frames get
// an error event back; the connection stays up.
func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		_ = client.SendJSON(domain.NewErrorOut(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeUserConnected:
		// resync request: resend the login snapshot for this session
		h.service.Connected(client, false)

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorOut(domain.ErrCodeBadRequest, "invalid send_message frame"))
			return
		}
		sent, err := h.service.Send(ctx, msg.ChatID, client.UserID, msg.Text)
		if err != nil {
			h.sendFailureAck(client, domain.MsgTypeSendMessage, err)
			return
		}
		_ = client.SendJSON(domain.AckOut{
			Type:    domain.MsgTypeAck,
			Event:   domain.MsgTypeSendMessage,
			Success: true,
			Data:    sent,
		})

	case domain.MsgTypeReadMessage:
		var msg domain.ReadMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorOut(domain.ErrCodeBadRequest, "invalid read_message frame"))
			return
		}
		read, err := h.service.MarkRead(ctx, msg.ChatID, client.UserID, msg.MessageIDs)
		if err != nil {
			h.sendFailureAck(client, domain.MsgTypeReadMessage, err)
			return
		}
		_ = client.SendJSON(domain.AckOut{
			Type:    domain.MsgTypeAck,
			Event:   domain.MsgTypeReadMessage,
			Success: true,
			Data:    read,
		})

	case domain.MsgTypeTyping:
		var msg domain.TypingIn
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = client.SendJSON(domain.NewErrorOut(domain.ErrCodeBadRequest, "invalid typing_status frame"))
			return
		}
		// fire and forget, but membership violations still get a reply
		if err := h.service.Typing(ctx, msg.ChatID, client.UserID, msg.IsTyping); err != nil {
			h.sendFailureAck(client, domain.MsgTypeTyping, err)
		}

	default:
		_ = client.SendJSON(domain.NewErrorOut(domain.ErrCodeBadRequest, "unknown message type: "+base.Type))
	}
}

func (h *WSHandler) sendFailureAck(client *hub.Client, event string, err error) {
	code := domain.ErrCodeInternalError
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		code = domain.ErrCodeBadRequest
	case errors.Is(err, service.ErrNotMember):
		code = domain.ErrCodeUnauthorized
	case errors.Is(err, repository.ErrChatNotFound):
		code = domain.ErrCodeNotFound
	}
	_ = client.SendJSON(domain.AckOut{
		Type:    domain.MsgTypeAck,
		Event:   event,
		Success: false,
		Code:    code,
		Message: err.Error(),
	})
}
