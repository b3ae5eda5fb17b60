package relay

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/pkg/chat"
)

const maxConversationBytes = 1 << 20

// ServeHTTP relays a POSTed JSON conversation as a raw UTF-8 byte stream.
// A failure after the status line has been sent aborts the response, so the
// client sees a truncated body instead of a clean end-of-stream.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log := logger.L.With("request_id", middleware.GetReqID(req.Context()))

	conv, err := chat.DecodeConversation(http.MaxBytesReader(w, req.Body, maxConversationBytes))
	if err != nil {
		log.Warn("rejecting conversation", "error", err)
		http.Error(w, "invalid conversation", http.StatusBadRequest)
		return
	}
	log.Info("relay request", "messages", len(conv))

	stream, err := r.Open(req.Context(), conv)
	if err != nil {
		log.Error("upstream open failed", "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	sink := newHTTPSink(w)
	if err := sink.flush(); err != nil {
		log.Warn("flushing headers failed", "error", err)
	}

	n, err := Pump(stream, sink)
	switch {
	case err == nil:
		log.Info("relay completed", "fragments", n)
	case req.Context().Err() != nil:
		log.Info("client went away", "fragments", n, "error", err)
	default:
		log.Error("relay aborted", "fragments", n, "error", err)
		panic(http.ErrAbortHandler)
	}
}

type httpSink struct {
	w  io.Writer
	rc *http.ResponseController
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	return &httpSink{w: w, rc: http.NewResponseController(w)}
}

func (s *httpSink) WriteFragment(text string) error {
	if _, err := s.w.Write(chat.EncodeFragment(text)); err != nil {
		return err
	}
	return s.flush()
}

func (s *httpSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
