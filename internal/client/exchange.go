package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/pkg/chat"
)

// State is the lifecycle position of a single send.
type State string

const (
	StateIdle            State = "Idle"
	StateAwaitingHeaders State = "AwaitingHeaders"
	StateStreaming       State = "Streaming"
	StateCompleted       State = "Completed" // Terminal: end-of-stream received
	StateFailed          State = "Failed"    // Terminal: apology appended
	StateCanceled        State = "Canceled"  // Terminal: context canceled, nothing appended
)

// Trigger moves a send between states.
type Trigger string

const (
	TriggerSend        Trigger = "Send"
	TriggerHeaders     Trigger = "HeadersReceived"
	TriggerFragment    Trigger = "FragmentDecoded"
	TriggerEndOfStream Trigger = "EndOfStream"
	TriggerFail        Trigger = "Fail"
	TriggerCancel      Trigger = "Cancel"
)

// exchange is one send: a request, its streamed response and the state
// machine that applies each event to the conversation.
type exchange struct {
	id     string
	client *Client
	slot   int
	fsm    *stateless.StateMachine
}

func newExchange(c *Client, slot int) *exchange {
	x := &exchange{id: uuid.NewString(), client: c, slot: slot}
	log := logger.L.With("request_id", x.id)

	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerSend, StateAwaitingHeaders)

	fsm.Configure(StateAwaitingHeaders).
		Permit(TriggerHeaders, StateStreaming).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerCancel, StateCanceled)

	// State: Streaming
	// Each decoded fragment is an internal transition so the state stays put
	// while the accumulator grows.
	fsm.Configure(StateStreaming).
		InternalTransition(TriggerFragment, func(_ context.Context, args ...any) error {
			c.appendFragment(x.slot, args[0].(string))
			return nil
		}).
		Permit(TriggerEndOfStream, StateCompleted).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerCancel, StateCanceled)

	fsm.Configure(StateFailed).
		OnEntry(func(_ context.Context, args ...any) error {
			c.appendApology()
			return nil
		})

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		log.Debug("send transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})

	x.fsm = fsm
	return x
}

func (x *exchange) state() State {
	return x.fsm.MustState().(State)
}

func (x *exchange) fire(ctx context.Context, trigger Trigger, args ...any) error {
	if err := x.fsm.FireCtx(ctx, trigger, args...); err != nil {
		return fmt.Errorf("send %s: %w", x.id, err)
	}
	return nil
}

func (x *exchange) run(ctx context.Context, payload chat.Conversation) (State, error) {
	log := logger.L.With("request_id", x.id)

	if err := x.fire(ctx, TriggerSend); err != nil {
		return x.state(), err
	}

	resp, err := x.post(ctx, payload)
	if err != nil {
		return x.abort(ctx, err)
	}
	defer resp.Body.Close()

	if err := x.fire(ctx, TriggerHeaders); err != nil {
		return x.state(), err
	}

	dec := chat.NewStreamDecoder()
	buf := make([]byte, x.client.readBuffer)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if text := dec.Decode(buf[:n]); text != "" {
				if err := x.fire(ctx, TriggerFragment, text); err != nil {
					return x.state(), err
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return x.abort(ctx, fmt.Errorf("read body: %w", rerr))
		}
	}

	if tail := dec.Flush(); tail != "" {
		if err := x.fire(ctx, TriggerFragment, tail); err != nil {
			return x.state(), err
		}
	}
	if err := x.fire(ctx, TriggerEndOfStream); err != nil {
		return x.state(), err
	}
	log.Info("reply received")
	return x.state(), nil
}

func (x *exchange) post(ctx context.Context, payload chat.Conversation) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.client.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set(chimiddleware.RequestIDHeader, x.id)

	resp, err := x.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// abort ends the send. A cause that stems from ctx ending the send ends it
// quietly; anything else, even when ctx is done by then, is a transport
// failure and appends the apology.
func (x *exchange) abort(ctx context.Context, cause error) (State, error) {
	log := logger.L.With("request_id", x.id)

	if canceled(cause) {
		log.Info("send canceled", "error", cause)
		if err := x.fire(context.WithoutCancel(ctx), TriggerCancel); err != nil {
			return x.state(), err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return x.state(), ctxErr
		}
		return x.state(), cause
	}

	log.Warn("send failed", "error", cause)
	if err := x.fire(context.WithoutCancel(ctx), TriggerFail); err != nil {
		return x.state(), err
	}
	return x.state(), fmt.Errorf("%w: %w", ErrTransport, cause)
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
