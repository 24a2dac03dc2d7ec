package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"adaptive-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type topRequest struct {
	Dimension string `json:"dimension"`
	Limit     int    `json:"limit"`
}

type topPayload struct {
	Dimension domain.Dimension     `json:"dimension"`
	Entries   []domain.RankedEntry `json:"entries"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeLeaderboardStream upgrades to a websocket that first sends both top lists, then
// one "update" per committed answer. Clients may send {"type":"top"} to re-read a list.
func (h *Handler) ServeLeaderboardStream(c *gin.Context) {
	limit := defaultTopLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.String(http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	updates, cancel := h.service.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "update", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for _, dim := range domain.Dimensions {
		send <- h.topMessage(c, dim, limit)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "top":
			var req topRequest
			if err := json.Unmarshal(inbound.Payload, &req); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid top payload"}}
				continue
			}
			n := req.Limit
			if n == 0 {
				n = limit
			}
			send <- h.topMessage(c, domain.Dimension(req.Dimension), n)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *Handler) topMessage(c *gin.Context, dim domain.Dimension, limit int) outboundMessage[any] {
	entries, err := h.service.GetTop(c.Request.Context(), dim, limit)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
	return outboundMessage[any]{Type: "leaderboard", Payload: topPayload{Dimension: dim, Entries: entries}}
}
