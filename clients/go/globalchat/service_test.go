package globalchat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/globalchat/internal/api"
)

func newService(t *testing.T, baseURL string, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClient(NewClient(baseURL))}, opts...)
	s := New(context.Background(), opts...)
	t.Cleanup(s.Close)
	return s
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestServiceSessionID(t *testing.T) {
	srv := newChatServer(t)
	a := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour))
	b := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour))

	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())

	c := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour), WithSessionID("fixed"))
	assert.Equal(t, "fixed", c.SessionID())
}

func TestServiceSendValidation(t *testing.T) {
	srv := newChatServer(t)
	s := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour))
	ctx := context.Background()

	assert.ErrorIs(t, s.SendMessage(ctx, "hi"), ErrNoUser)

	s.SetCurrentUser(ctx, "alice")
	assert.ErrorIs(t, s.SendMessage(ctx, "   "), ErrEmptyMessage)
	assert.Empty(t, s.Messages())
}

func TestServiceSendRefreshesState(t *testing.T) {
	srv := newChatServer(t)
	s := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour))
	ctx := context.Background()

	var got [][]Message
	s.OnMessage(func(msgs []Message) { got = append(got, msgs) })

	s.SetCurrentUser(ctx, "alice")
	require.NoError(t, s.SendMessage(ctx, "  hello  "))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "alice", msgs[0].Sender)
	require.Len(t, got, 1)
	assert.Equal(t, msgs, got[0])
}

func TestServiceHeartbeatUpdatesUsers(t *testing.T) {
	srv := newChatServer(t)
	s := newService(t, srv.URL+api.BasePath, WithPollInterval(time.Hour))

	var got []string
	s.OnUsersChange(func(users []string) { got = users })

	s.SetCurrentUser(context.Background(), "alice")

	assert.Equal(t, []string{"alice"}, s.ActiveUsers())
	assert.Equal(t, []string{"alice"}, got)
	assert.Equal(t, "alice", s.CurrentUser())
}

func TestServiceEndToEnd(t *testing.T) {
	srv := newChatServer(t)
	base := srv.URL + api.BasePath
	ctx := context.Background()

	alice := newService(t, base, WithPollInterval(20*time.Millisecond))
	bob := newService(t, base, WithPollInterval(20*time.Millisecond))

	received := make(chan []Message, 16)
	bob.OnMessage(func(msgs []Message) {
		select {
		case received <- msgs:
		default:
		}
	})

	alice.SetCurrentUser(ctx, "alice")
	bob.SetCurrentUser(ctx, "bob")
	require.NoError(t, alice.SendMessage(ctx, "hi bob"))

	select {
	case msgs := <-received:
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi bob", msgs[0].Text)
		assert.Equal(t, "alice", msgs[0].Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the message")
	}

	require.Eventually(t, func() bool {
		users := alice.ActiveUsers()
		return len(users) == 2 && users[0] == "alice" && users[1] == "bob"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.ClearChat(ctx))
	assert.Empty(t, bob.Messages())
	require.Eventually(t, func() bool {
		return len(alice.Messages()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceInitialLoadFromFallback(t *testing.T) {
	fb := NewMemoryFallback()
	require.NoError(t, fb.Save(context.Background(), sampleMessages()))

	s := newService(t, deadURL(t), WithPollInterval(time.Hour), WithFallback(fb))

	assert.Equal(t, sampleMessages(), s.Messages())
}

func TestServiceDegradedSendAndClear(t *testing.T) {
	fb := NewMemoryFallback()
	s := newService(t, deadURL(t), WithPollInterval(time.Hour), WithFallback(fb))
	ctx := context.Background()

	var notified int
	s.OnMessage(func([]Message) { notified++ })

	s.SetCurrentUser(ctx, "alice")
	require.NoError(t, s.SendMessage(ctx, " offline "))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "offline", msgs[0].Text)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Len(t, msgs[0].ID, 26)
	_, err := time.Parse(TimestampFormat, msgs[0].Timestamp)
	require.NoError(t, err)

	saved, found, err := fb.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, msgs, saved)

	require.NoError(t, s.ClearChat(ctx))
	assert.Empty(t, s.Messages())

	saved, _, err = fb.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Equal(t, 2, notified)
}

func TestServiceSendRejectedKeepsMessageLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/message" {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[],"activeUsers":[]}`))
	}))
	defer srv.Close()

	fb := NewMemoryFallback()
	s := newService(t, srv.URL, WithPollInterval(time.Hour), WithFallback(fb))
	ctx := context.Background()

	s.SetCurrentUser(ctx, "alice")
	require.NoError(t, s.SendMessage(ctx, "kept"))

	require.Len(t, s.Messages(), 1)
	saved, found, err := fb.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, saved, 1)
}

func TestServiceClearRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/clear" {
			http.Error(w, `{"error":"nope"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"1","text":"a","sender":"x","timestamp":"t"}],"activeUsers":[]}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, WithPollInterval(time.Hour))

	err := s.ClearChat(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Len(t, s.Messages(), 1)
}

func TestServiceListenerPanicIsolated(t *testing.T) {
	s := newService(t, deadURL(t), WithPollInterval(time.Hour))
	ctx := context.Background()
	s.SetCurrentUser(ctx, "alice")

	var order []string
	s.OnMessage(func([]Message) {
		order = append(order, "first")
		panic("listener bug")
	})
	s.OnMessage(func([]Message) { order = append(order, "second") })

	require.NotPanics(t, func() {
		require.NoError(t, s.SendMessage(ctx, "one"))
	})
	require.NoError(t, s.SendMessage(ctx, "two"))

	// The panicking listener stays registered.
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestServiceListenerRemoval(t *testing.T) {
	s := newService(t, deadURL(t), WithPollInterval(time.Hour))
	ctx := context.Background()
	s.SetCurrentUser(ctx, "alice")

	var a, b int
	removeA := s.OnMessage(func([]Message) { a++ })
	s.OnMessage(func([]Message) { b++ })

	require.NoError(t, s.SendMessage(ctx, "one"))
	removeA()
	removeA()
	require.NoError(t, s.SendMessage(ctx, "two"))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestServiceListenersGetOwnCopy(t *testing.T) {
	s := newService(t, deadURL(t), WithPollInterval(time.Hour))
	ctx := context.Background()
	s.SetCurrentUser(ctx, "alice")

	s.OnMessage(func(msgs []Message) { msgs[0].Text = "mutated" })
	var seen string
	s.OnMessage(func(msgs []Message) { seen = msgs[0].Text })

	require.NoError(t, s.SendMessage(ctx, "original"))

	assert.Equal(t, "original", seen)
	assert.Equal(t, "original", s.Messages()[0].Text)
}

func TestServicePollingSyncsFallback(t *testing.T) {
	fb := NewMemoryFallback()
	s := newService(t, deadURL(t), WithPollInterval(10*time.Millisecond), WithFallback(fb))

	require.NoError(t, fb.Save(context.Background(), sampleMessages()))

	require.Eventually(t, func() bool {
		return len(s.Messages()) == len(sampleMessages())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceCloseStopsPolling(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[],"activeUsers":[]}`))
	}))
	defer srv.Close()

	s := New(context.Background(), WithClient(NewClient(srv.URL)), WithPollInterval(5*time.Millisecond))

	require.Eventually(t, func() bool { return hits.Load() > 2 }, 2*time.Second, 5*time.Millisecond)

	s.Close()
	s.Close()
	after := hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, hits.Load())
}

func TestServiceConcurrentUse(t *testing.T) {
	srv := newChatServer(t)
	s := newService(t, srv.URL+api.BasePath, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()
	s.SetCurrentUser(ctx, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = s.SendMessage(ctx, "msg")
				_ = s.Messages()
				_ = s.ActiveUsers()
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(s.Messages()) == 40 }, 2*time.Second, 10*time.Millisecond)
}

func TestServiceOverlappingUpdatesDeliverLatest(t *testing.T) {
	s := newService(t, deadURL(t), WithPollInterval(time.Hour))

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var last []Message
	s.OnMessage(func(msgs []Message) {
		once.Do(func() {
			close(blocked)
			<-release
		})
		mu.Lock()
		last = msgs
		mu.Unlock()
	})

	one := sampleMessages()[:1]
	two := sampleMessages()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		s.applyMessages(one)
	}()
	<-blocked

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		s.applyMessages(two)
	}()
	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, time.Second, time.Millisecond)

	close(release)
	<-firstDone
	<-secondDone

	// A repeat of the current state is not a change and notifies nobody.
	s.applyMessages(two)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, two, last)
	assert.Equal(t, s.Messages(), last)
}

func TestServiceListenersMatchStateAfterConcurrentUpdates(t *testing.T) {
	srv := newChatServer(t)
	s := New(context.Background(),
		WithClient(NewClient(srv.URL+api.BasePath)),
		WithPollInterval(2*time.Millisecond),
	)
	ctx := context.Background()
	s.SetCurrentUser(ctx, "alice")

	var mu sync.Mutex
	var lastMsgs []Message
	var lastUsers []string
	s.OnMessage(func(msgs []Message) {
		mu.Lock()
		lastMsgs = msgs
		mu.Unlock()
	})
	s.OnUsersChange(func(users []string) {
		mu.Lock()
		lastUsers = users
		mu.Unlock()
	})

	other := NewClient(srv.URL + api.BasePath)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.SendMessage(ctx, "from alice")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = other.PostMessage(ctx, "from bob", "bob", "s-bob")
			}
		}()
	}
	wg.Wait()
	_, err := other.Heartbeat(ctx, "bob", "s-bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 80 && len(s.ActiveUsers()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, s.Messages(), lastMsgs)
	assert.Equal(t, s.ActiveUsers(), lastUsers)
}
