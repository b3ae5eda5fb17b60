package relay

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/pkg/chat"
)

const closeWait = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket relays one conversation per connection. The first text
// frame carries the JSON conversation; each fragment goes out as its own
// text frame. The close code tells completion (1000) from upstream failure
// (1011) and a malformed conversation (1003).
func (r *Relay) ServeWebSocket(w http.ResponseWriter, req *http.Request) {
	log := logger.L.With("request_id", middleware.GetReqID(req.Context()))

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxConversationBytes)
	_, payload, err := conn.ReadMessage()
	if err != nil {
		log.Warn("reading conversation failed", "error", err)
		return
	}
	conv, err := chat.DecodeConversation(bytes.NewReader(payload))
	if err != nil {
		log.Warn("rejecting conversation", "error", err)
		closeWith(conn, websocket.CloseUnsupportedData, "invalid conversation")
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// the peer closing or dropping the connection cancels the upstream call
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	n, err := r.Stream(ctx, conv, wsSink{conn: conn})
	switch {
	case err == nil:
		log.Info("relay completed", "fragments", n, "transport", "websocket")
		closeWith(conn, websocket.CloseNormalClosure, "")
	case ctx.Err() != nil:
		log.Info("client went away", "fragments", n, "error", err)
	default:
		log.Error("relay aborted", "fragments", n, "error", err, "transport", "websocket")
		closeWith(conn, websocket.CloseInternalServerErr, "upstream failure")
	}
}

type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) WriteFragment(text string) error {
	return s.conn.WriteMessage(websocket.TextMessage, chat.EncodeFragment(text))
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		logger.L.Debug("writing close frame failed", "error", err)
	}
}
