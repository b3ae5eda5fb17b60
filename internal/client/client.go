// Package client holds a conversation and sends it to the relay, growing the
// trailing assistant turn as streamed fragments arrive.
package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/comigor/wanderchat/pkg/chat"
)

const (
	// Greeting seeds every new conversation.
	Greeting = "Hi! I am a traveling agent. How can I assist you today?"
	// Apology is appended as an assistant turn when a send fails.
	Apology = "I am so sorry that I cannot help you resolve this question."

	defaultReadBuffer = 4096
)

var (
	// ErrSendInFlight is returned when SendMessage is called while another send
	// on the same client has not finished. The conversation is left untouched.
	ErrSendInFlight = errors.New("a message is already being sent")
	// ErrTransport wraps request, status and body read failures.
	ErrTransport = errors.New("transport failure")
)

// Snapshot is a copy of the client state after one mutation. Version grows
// by one with every mutation, so observers can drop out-of-order deliveries.
type Snapshot struct {
	Version  uint64
	Messages chat.Conversation
	Pending  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. It should not set a
// Timeout, which would cut long replies short.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithConversation seeds the conversation instead of the greeting.
func WithConversation(conv chat.Conversation) Option {
	return func(c *Client) { c.messages = conv.Clone() }
}

// WithObserver registers a function called after every mutation. It runs on
// the goroutine that mutated the state, outside the state lock.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Client) { c.observer = fn }
}

// WithReadBuffer sets the largest chunk read from the response body at once.
func WithReadBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readBuffer = n
		}
	}
}

// Client owns one conversation. All mutations go through update, one per
// event, so an observer never sees a half-applied change.
type Client struct {
	endpoint   string
	http       *http.Client
	observer   func(Snapshot)
	readBuffer int

	inFlight atomic.Bool

	mu       sync.Mutex
	version  uint64
	messages chat.Conversation
	pending  string
}

// New creates a client that posts to endpoint, e.g. http://localhost:8080/api/chat.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		http:       &http.Client{},
		readBuffer: defaultReadBuffer,
		messages:   chat.Conversation{{Role: chat.RoleAssistant, Content: Greeting}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Messages returns a copy of the conversation.
func (c *Client) Messages() chat.Conversation {
	return c.Snapshot().Messages
}

// SetPending records the text currently typed but not sent.
func (c *Client) SetPending(text string) {
	c.update(func(s *state) { s.pending = text })
}

// Pending returns the text currently typed but not sent.
func (c *Client) Pending() string {
	return c.Snapshot().Pending
}

// Busy reports whether a send is in flight.
func (c *Client) Busy() bool {
	return c.inFlight.Load()
}

// SendMessage appends text as a user turn followed by an empty assistant
// turn, posts the conversation and streams the reply into that assistant
// turn. It blocks until the reply ends, fails or ctx is canceled, and
// reports the terminal state. On failure the returned error wraps
// ErrTransport and an Apology turn has been appended.
func (c *Client) SendMessage(ctx context.Context, text string) (State, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return StateIdle, ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	payload, slot := c.compose(text)
	return newExchange(c, slot).run(ctx, payload)
}

// compose applies the synchronous part of a send and returns the payload
// (every prior turn plus the new user turn) and the accumulator slot.
func (c *Client) compose(text string) (chat.Conversation, int) {
	var payload chat.Conversation
	var slot int
	c.update(func(s *state) {
		s.pending = ""
		s.messages = append(s.messages, chat.Message{Role: chat.RoleUser, Content: text})
		payload = s.messages.Clone()
		s.messages = append(s.messages, chat.Message{Role: chat.RoleAssistant, Content: ""})
		slot = len(s.messages) - 1
	})
	return payload, slot
}

// appendFragment grows the accumulator at slot, reading the live state.
func (c *Client) appendFragment(slot int, text string) {
	c.update(func(s *state) {
		if slot < len(s.messages) {
			s.messages[slot].Content += text
		}
	})
}

func (c *Client) appendApology() {
	c.update(func(s *state) {
		s.messages = append(s.messages, chat.Message{Role: chat.RoleAssistant, Content: Apology})
	})
}

type state struct {
	messages chat.Conversation
	pending  string
}

func (c *Client) update(fn func(*state)) {
	c.mu.Lock()
	s := state{messages: c.messages, pending: c.pending}
	fn(&s)
	c.messages, c.pending = s.messages, s.pending
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.observer != nil {
		c.observer(snap)
	}
}

func (c *Client) snapshotLocked() Snapshot {
	return Snapshot{Version: c.version, Messages: c.messages.Clone(), Pending: c.pending}
}
