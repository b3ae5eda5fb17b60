package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/wanderchat/pkg/chat"
)

// streamServer writes each chunk and flushes it, mimicking the relay.
func streamServer(t *testing.T, chunks ...[]byte) (*httptest.Server, *[]chat.Conversation) {
	t.Helper()
	var mu sync.Mutex
	var got []chat.Conversation
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var conv chat.Conversation
		if err := json.NewDecoder(r.Body).Decode(&conv); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, conv)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()
		for _, c := range chunks {
			w.Write(c)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func chunksOf(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func TestNew_SeedsGreeting(t *testing.T) {
	c := New("http://unused")
	require.Equal(t, chat.Conversation{{Role: chat.RoleAssistant, Content: Greeting}}, c.Messages())

	c = New("http://unused", WithConversation(nil))
	require.Empty(t, c.Messages())
}

func TestSendMessage_ComposesAndStreams(t *testing.T) {
	server, got := streamServer(t, chunksOf("Based", " on", " your", " love of hiking...")...)
	c := New(server.URL)
	c.SetPending("I like hiking, suggest a destination")
	before := c.Messages()

	state, err := c.SendMessage(context.Background(), "I like hiking, suggest a destination")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	msgs := c.Messages()
	require.Len(t, msgs, len(before)+2)
	require.Equal(t, chat.Message{Role: chat.RoleUser, Content: "I like hiking, suggest a destination"}, msgs[len(before)])
	require.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: "Based on your love of hiking..."}, msgs[len(before)+1])
	require.Empty(t, c.Pending())

	// payload carries the typed text as its last element and no placeholder
	require.Len(t, *got, 1)
	payload := (*got)[0]
	require.Equal(t, append(before.Clone(), chat.Message{Role: chat.RoleUser, Content: "I like hiking, suggest a destination"}), payload)
}

func TestSendMessage_SynchronousCompose(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	var mu sync.Mutex
	var snaps []Snapshot
	c := New(server.URL, WithObserver(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}))
	c.SetPending("hello")

	go c.SendMessage(context.Background(), "hello")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) >= 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	composed := snaps[1]
	mu.Unlock()
	require.Empty(t, composed.Pending)
	require.Equal(t, chat.Conversation{
		{Role: chat.RoleAssistant, Content: Greeting},
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: ""},
	}, composed.Messages)
	require.True(t, c.Busy())
}

func TestSendMessage_EmptyInputIsSent(t *testing.T) {
	server, got := streamServer(t, chunksOf("ok")...)
	c := New(server.URL, WithConversation(nil))

	_, err := c.SendMessage(context.Background(), "")
	require.NoError(t, err)

	require.Equal(t, chat.Conversation{{Role: chat.RoleUser, Content: ""}}, (*got)[0])
	require.Equal(t, chat.Conversation{
		{Role: chat.RoleUser, Content: ""},
		{Role: chat.RoleAssistant, Content: "ok"},
	}, c.Messages())
}

func TestSendMessage_SplitInvariance(t *testing.T) {
	frags := []string{"Zer", "matt ", "→ ", "山", " 👩‍👩‍👧"}
	whole := strings.Join(frags, "")

	run := func(readBuffer int, chunks ...[]byte) string {
		server, _ := streamServer(t, chunks...)
		c := New(server.URL, WithReadBuffer(readBuffer))
		_, err := c.SendMessage(context.Background(), "go")
		require.NoError(t, err)
		last, _ := c.Messages().Last()
		return last.Content
	}

	require.Equal(t, whole, run(4096, chunksOf(frags...)...))
	require.Equal(t, whole, run(4096, []byte(frags[0]+frags[1]), []byte(frags[2]+frags[3]+frags[4])))
	require.Equal(t, whole, run(4096, []byte(whole)))
	// one byte per read splits every multi-byte character
	require.Equal(t, whole, run(1, chunksOf(frags...)...))

	// a character split across two server writes
	raw := []byte(whole)
	for i := 1; i < len(raw); i += 3 {
		require.Equal(t, whole, run(4096, raw[:i], raw[i:]), "split at %d", i)
	}
}

func TestSendMessage_ZeroFragments(t *testing.T) {
	server, _ := streamServer(t)
	c := New(server.URL)

	state, err := c.SendMessage(context.Background(), "anyone there?")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	last, _ := c.Messages().Last()
	require.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: ""}, last)
}

func TestSendMessage_StatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL)
	before := len(c.Messages())

	state, err := c.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, StateFailed, state)

	msgs := c.Messages()
	require.Len(t, msgs, before+3)
	require.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: ""}, msgs[before+1])
	require.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: Apology}, msgs[before+2])
	require.False(t, c.Busy())
}

func TestSendMessage_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(url, WithConversation(nil))
	state, err := c.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, StateFailed, state)
	require.Len(t, c.Messages(), 3)
}

func TestSendMessage_BrokenStreamKeepsPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Based on"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	c := New(server.URL, WithConversation(nil))
	state, err := c.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, StateFailed, state)

	require.Equal(t, chat.Conversation{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "Based on"},
		{Role: chat.RoleAssistant, Content: Apology},
	}, c.Messages())
}

func TestSendMessage_RejectsOverlappingSend(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()

	c := New(server.URL, WithConversation(nil))

	done := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(context.Background(), "one")
		done <- err
	}()
	require.Eventually(t, func() bool {
		last, ok := c.Messages().Last()
		return ok && last.Content == "first"
	}, 2*time.Second, 5*time.Millisecond)

	c.SetPending("two")
	state, err := c.SendMessage(context.Background(), "two")
	require.ErrorIs(t, err, ErrSendInFlight)
	require.Equal(t, StateIdle, state)
	require.Len(t, c.Messages(), 2)
	require.Equal(t, "two", c.Pending())

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, chat.Conversation{
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleAssistant, Content: "first"},
	}, c.Messages())
}

func TestSendMessage_CancelWhileStreaming(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Based"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := New(server.URL, WithConversation(nil))
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		state State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.SendMessage(ctx, "hi")
		done <- result{s, err}
	}()
	require.Eventually(t, func() bool {
		last, ok := c.Messages().Last()
		return ok && last.Content == "Based"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	res := <-done
	require.ErrorIs(t, res.err, context.Canceled)
	require.Equal(t, StateCanceled, res.state)
	require.Equal(t, chat.Conversation{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "Based"},
	}, c.Messages())
}

func TestSendMessage_CancelBeforeHeaders(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// reading the body to EOF lets the server notice the client hanging up
		io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	// close(release) runs first so Close never waits on a parked handler
	defer server.Close()
	defer close(release)

	c := New(server.URL, WithConversation(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	state, err := c.SendMessage(ctx, "hi")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateCanceled, state)
	require.Len(t, c.Messages(), 2)
}

func TestSnapshot_VersionIncreases(t *testing.T) {
	var versions []uint64
	c := New("http://unused", WithObserver(func(s Snapshot) { versions = append(versions, s.Version) }))

	c.SetPending("a")
	c.SetPending("ab")
	require.Equal(t, []uint64{1, 2}, versions)
	require.Equal(t, uint64(2), c.Snapshot().Version)
	require.Equal(t, "ab", c.Pending())
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSendMessage_FailureRacingCancelStillApologizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the relay answers 502 at the same moment the caller gives up
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		cancel()
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(strings.NewReader("upstream unavailable")),
			Request:    r,
		}, nil
	})

	c := New("http://relay.invalid/api/chat",
		WithConversation(nil),
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	state, err := c.SendMessage(ctx, "hi")
	require.ErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, state)
	require.Equal(t, chat.Conversation{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: ""},
		{Role: chat.RoleAssistant, Content: Apology},
	}, c.Messages())
}
