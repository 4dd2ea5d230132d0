package globalchat

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the Service fetches the full chat state.
const DefaultPollInterval = time.Second

var (
	// ErrNoUser is returned when sending without a current user.
	ErrNoUser = errors.New("no current user set")
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("message text is empty")
)

// Option configures a Service.
type Option func(*Service)

// WithClient sets the API client.
func WithClient(c *Client) Option {
	return func(s *Service) { s.client = c }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.httpClient = hc }
}

// WithPollInterval sets the polling period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithFallback sets the store used while the server is unreachable.
func WithFallback(f FallbackStore) Option {
	return func(s *Service) { s.fallback = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Service) { s.sessionID = id }
}

// Service polls the chat server, mirrors its state locally and notifies
// registered listeners when messages or active users change.
type Service struct {
	client     *Client
	httpClient *http.Client
	fallback   FallbackStore
	logger     zerolog.Logger
	interval   time.Duration
	sessionID  string

	mu          sync.Mutex
	messages    []Message
	users       map[string]struct{}
	currentUser string

	messageListeners listeners[[]Message]
	userListeners    listeners[[]string]
	notifyMsgMu      sync.Mutex
	notifyUsersMu    sync.Mutex

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Service, loads the initial state and starts polling.
// Polling stops when ctx is cancelled or Close is called.
func New(ctx context.Context, opts ...Option) *Service {
	s := &Service{
		logger:    zerolog.Nop(),
		interval:  DefaultPollInterval,
		sessionID: uuid.NewString(),
		messages:  []Message{},
		users:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewClient(DefaultBaseURL)
	}
	if s.httpClient != nil {
		s.client.HTTPClient = s.httpClient
	}
	if s.fallback == nil {
		s.fallback = NewMemoryFallback()
	}

	s.loadInitial(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(loopCtx)

	return s
}

// Close stops polling and waits for in-flight ticks. It makes no server call.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks may overlap when a response is slower than the interval.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.tick(ctx)
			}()
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	s.refresh(ctx)
	if user := s.CurrentUser(); user != "" {
		s.heartbeat(ctx, user)
	}
}

func (s *Service) loadInitial(ctx context.Context) {
	state, err := s.client.GetChat(ctx)
	if err != nil {
		if isTransportError(err) {
			s.logger.Debug().Err(err).Msg("server unavailable, using local fallback")
			s.syncFallback(ctx)
			return
		}
		s.logger.Debug().Err(err).Msg("initial fetch rejected")
		return
	}

	s.mu.Lock()
	s.messages = slices.Clone(nonNil(state.Messages))
	s.users = toSet(state.ActiveUsers)
	s.mu.Unlock()

	s.notifyMessages()
	s.notifyUsers()
}

// refresh fetches the full state and applies whatever changed.
func (s *Service) refresh(ctx context.Context) {
	state, err := s.client.GetChat(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug().Err(err).Msg("fetch chat failed")
		if isTransportError(err) {
			s.syncFallback(ctx)
		}
		return
	}

	s.applyMessages(state.Messages)
	s.applyUsers(state.ActiveUsers)
}

func (s *Service) heartbeat(ctx context.Context, username string) {
	users, err := s.client.Heartbeat(ctx, username, s.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug().Err(err).Str("username", username).Msg("heartbeat failed")
		}
		return
	}
	s.applyUsers(users)
}

func (s *Service) syncFallback(ctx context.Context) {
	msgs, found, err := s.fallback.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load fallback messages")
		return
	}
	if !found {
		return
	}
	s.applyMessages(msgs)
}

func (s *Service) saveFallback(ctx context.Context, msgs []Message) {
	if err := s.fallback.Save(ctx, msgs); err != nil {
		s.logger.Error().Err(err).Msg("failed to save fallback messages")
	}
}

// applyMessages replaces the local list if it differs structurally.
func (s *Service) applyMessages(msgs []Message) {
	msgs = nonNil(msgs)

	s.mu.Lock()
	if slices.Equal(s.messages, msgs) {
		s.mu.Unlock()
		return
	}
	s.messages = slices.Clone(msgs)
	s.mu.Unlock()

	s.notifyMessages()
}

// applyUsers replaces the local user set if membership changed.
func (s *Service) applyUsers(users []string) {
	next := toSet(users)

	s.mu.Lock()
	if maps.Equal(s.users, next) {
		s.mu.Unlock()
		return
	}
	s.users = next
	s.mu.Unlock()

	s.notifyUsers()
}

// SetCurrentUser sets the username used for sending and presence. A
// non-empty name is announced with an immediate heartbeat; an empty name
// stops heartbeats.
func (s *Service) SetCurrentUser(ctx context.Context, username string) {
	username = strings.TrimSpace(username)

	s.mu.Lock()
	s.currentUser = username
	s.mu.Unlock()

	if username != "" {
		s.heartbeat(ctx, username)
	}
}

// SendMessage posts text as the current user. When the server cannot take
// the message it is kept locally and written to the fallback store.
func (s *Service) SendMessage(ctx context.Context, text string) error {
	user := s.CurrentUser()
	if user == "" {
		return ErrNoUser
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	_, err := s.client.PostMessage(ctx, text, user, s.sessionID)
	if err == nil {
		s.refresh(ctx)
		return nil
	}

	s.logger.Warn().Err(err).Msg("send failed, keeping message locally")

	msg := Message{
		ID:        ulid.Make().String(),
		Text:      text,
		Sender:    user,
		Timestamp: time.Now().UTC().Format(TimestampFormat),
	}

	s.mu.Lock()
	s.messages = append(slices.Clone(s.messages), msg)
	snapshot := slices.Clone(s.messages)
	s.mu.Unlock()

	s.saveFallback(ctx, snapshot)
	s.notifyMessages()
	return nil
}

// ClearChat clears the chat on the server and locally. If the server is
// unreachable only the local list and the fallback store are cleared.
func (s *Service) ClearChat(ctx context.Context) error {
	err := s.client.Clear(ctx)
	if err != nil && !isTransportError(err) {
		return fmt.Errorf("clear chat: %w", err)
	}

	s.mu.Lock()
	s.messages = []Message{}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("clear failed, clearing locally")
		s.saveFallback(ctx, []Message{})
	}
	s.notifyMessages()
	return nil
}

// OnMessage registers fn to receive the full message list on every change.
// Listeners are called one delivery at a time and must not call SendMessage
// or ClearChat from the same goroutine. The returned func removes the listener.
func (s *Service) OnMessage(fn func([]Message)) func() {
	return s.messageListeners.add(fn)
}

// OnUsersChange registers fn to receive the active users on every change.
// The returned func removes the listener.
func (s *Service) OnUsersChange(fn func([]string)) func() {
	return s.userListeners.add(fn)
}

// Messages returns a copy of the local message list.
func (s *Service) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// ActiveUsers returns the local active users, sorted.
func (s *Service) ActiveUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers()
}

// SessionID returns this Service's session id.
func (s *Service) SessionID() string {
	return s.sessionID
}

// CurrentUser returns the current username, or "" if none is set.
func (s *Service) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// sortedUsers must be called with s.mu held.
func (s *Service) sortedUsers() []string {
	users := slices.Collect(maps.Keys(s.users))
	slices.Sort(users)
	if users == nil {
		users = []string{}
	}
	return users
}

// notifyMessages delivers the current message list to every listener.
// Deliveries are serialized and each one reads the state at delivery time,
// so the last notification a listener sees always matches Messages().
func (s *Service) notifyMessages() {
	s.notifyMsgMu.Lock()
	defer s.notifyMsgMu.Unlock()

	msgs := s.Messages()
	for _, fn := range s.messageListeners.snapshot() {
		s.safeCall("message", func() { fn(slices.Clone(msgs)) })
	}
}

// notifyUsers is the active-user counterpart of notifyMessages.
func (s *Service) notifyUsers() {
	s.notifyUsersMu.Lock()
	defer s.notifyUsersMu.Unlock()

	users := s.ActiveUsers()
	for _, fn := range s.userListeners.snapshot() {
		s.safeCall("users", func() { fn(slices.Clone(users)) })
	}
}

func (s *Service) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("listener", kind).Msg("listener panicked")
		}
	}()
	fn()
}

// listeners is an ordered callback registry with id-based removal.
type listeners[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id int
	fn func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, listenerEntry[T]{id: id, fn: fn})

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = slices.DeleteFunc(l.entries, func(e listenerEntry[T]) bool {
			return e.id == id
		})
	}
}

func (l *listeners[T]) snapshot() []func(T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fns := make([]func(T), len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// isTransportError reports whether err means the server was not reached,
// as opposed to the server answering with an error status.
func isTransportError(err error) bool {
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

func nonNil(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

func toSet(users []string) map[string]struct{} {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	return set
}
