package handler

import (
	"io"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"secretari/internal/chat"
	"secretari/internal/errors"
)

// ChatHandler serves the chat WebSocket.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// Serve godoc
// @Summary Chat over WebSocket
// @Description Each client message is a JSON event. The server answers with stream chunks followed by one result message.
// @Tags chat
// @Security BearerAuth
// @Param token query string false "Access token, for clients that cannot set headers"
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} errors.ErrorResponse
// @Router /ws/ [get]
func (h *ChatHandler) Serve(c echo.Context) error {
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}

	websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()
		ctx := c.Request().Context()
		send := func(v interface{}) error {
			return websocket.JSON.Send(ws, v)
		}

		for {
			var ev chat.Event
			if err := websocket.JSON.Receive(ws, &ev); err != nil {
				if !errors.Is(err, io.EOF) {
					c.Logger().Errorf("chat receive for %s: %v", claims.Username, err)
				}
				return
			}

			if err := h.chat.Handle(ctx, claims.Username, ev, send); err != nil {
				c.Logger().Errorf("chat turn for %s: %v", claims.Username, err)
				if err := send(errors.MapErrorToHTTP(err).ToErrorResponse()); err != nil {
					return
				}
			}
		}
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}
