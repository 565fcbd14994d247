package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/sirupsen/logrus"
)

const (
	defaultCallbackWait = 500 * time.Millisecond
	defaultLoopIdle     = 50 * time.Millisecond
)

// SessionClient owns one social-network session. Run drives the only loop
// that observes session events; every other method is safe to call from
// other goroutines while it runs.
type SessionClient struct {
	transport ports.SessionTransport
	creds     domain.Credentials
	log       logrus.FieldLogger

	callbackWait time.Duration
	idle         time.Duration

	handlers map[domain.SessionEventKind]func(context.Context, domain.SessionEvent)

	mu            sync.Mutex
	state         domain.SessionState
	nicknames     []domain.FriendNickname
	err           error
	stopRequested bool

	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
	haltOnce  sync.Once

	pending *pendingCounter
}

type SessionOption func(*SessionClient)

// WithLoopTiming overrides how long one loop iteration waits for events and
// how long it idles afterwards.
func WithLoopTiming(callbackWait, idle time.Duration) SessionOption {
	return func(c *SessionClient) {
		c.callbackWait = callbackWait
		c.idle = idle
	}
}

func NewSessionClient(transport ports.SessionTransport, creds domain.Credentials, log logrus.FieldLogger, opts ...SessionOption) *SessionClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if creds.LoginID == 0 {
		creds.LoginID = domain.DefaultLoginID
	}

	c := &SessionClient{
		transport:    transport,
		creds:        creds,
		log:          log.WithField("component", "session"),
		callbackWait: defaultCallbackWait,
		idle:         defaultLoopIdle,
		state:        domain.SessionDisconnected,
		ready:        make(chan struct{}),
		stopped:      make(chan struct{}),
		pending:      newPendingCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.handlers = map[domain.SessionEventKind]func(context.Context, domain.SessionEvent){
		domain.EventConnected:    c.onConnected,
		domain.EventDisconnected: c.onDisconnected,
		domain.EventLoggedOn:     c.onLoggedOn,
		domain.EventLoggedOff:    c.onLoggedOff,
		domain.EventFriendsList:  c.onFriendsList,
		domain.EventNicknameList: c.onNicknameList,
		domain.EventNicknameAck:  c.onNicknameAck,
	}

	return c
}

// Run connects and processes events until the session stops. It returns nil
// when the stop was requested through Stop, and the cause otherwise.
func (c *SessionClient) Run(ctx context.Context) error {
	if c.stopRequestedBeforeStart() {
		c.log.Info("Session stopped before connecting")
		c.halt(nil)
		return nil
	}

	c.log.Info("Starting session")
	if err := c.transport.Connect(ctx); err != nil {
		c.haltUnlessRequested(fmt.Errorf("%w: connect: %w", domain.ErrUnexpectedDisconnect, err))
		return c.Err()
	}

	events := c.transport.Events()
	for c.Running() {
		events = c.runWaitCallbacks(ctx, events)
		if ctx.Err() != nil {
			_ = c.transport.Disconnect()
			c.halt(ctx.Err())
			break
		}

		idle := time.NewTimer(c.idle)
		select {
		case <-ctx.Done():
			idle.Stop()
		case <-idle.C:
		}
	}

	return c.Err()
}

// runWaitCallbacks waits up to callbackWait for an event, then dispatches
// everything already queued. It returns nil once the event stream is closed.
func (c *SessionClient) runWaitCallbacks(ctx context.Context, events <-chan domain.SessionEvent) <-chan domain.SessionEvent {
	if events == nil {
		c.onStreamClosed()
		return nil
	}

	timer := time.NewTimer(c.callbackWait)
	defer timer.Stop()

	select {
	case ev, ok := <-events:
		if !ok {
			c.onStreamClosed()
			return nil
		}
		c.dispatch(ctx, ev)
	case <-timer.C:
		return events
	case <-ctx.Done():
		return events
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.onStreamClosed()
				return nil
			}
			c.dispatch(ctx, ev)
		default:
			return events
		}
	}
}

func (c *SessionClient) dispatch(ctx context.Context, ev domain.SessionEvent) {
	handler, ok := c.handlers[ev.Kind]
	if !ok {
		c.log.WithField("event", ev.Kind).Debug("ignore unknown session event")
		return
	}
	handler(ctx, ev)
}

// Stop asks the transport to disconnect. The loop ends when the resulting
// disconnect event is processed; callers wait for Run to return.
func (c *SessionClient) Stop() error {
	c.mu.Lock()
	c.stopRequested = true
	c.mu.Unlock()

	c.log.Info("Stopping session")
	if err := c.transport.Disconnect(); err != nil {
		return fmt.Errorf("disconnect session: %w", err)
	}
	return nil
}

// WaitForNicknamesReady blocks until the nickname list arrived or the loop
// stopped, and reports whether the nicknames are available.
func (c *SessionClient) WaitForNicknamesReady(ctx context.Context) bool {
	select {
	case <-c.ready:
		return true
	case <-c.stopped:
		return c.nicknamesReady()
	case <-ctx.Done():
		return false
	}
}

// WaitForMutationsSettled blocks until every rename was acknowledged or the
// loop stopped, and reports whether nothing is pending anymore.
func (c *SessionClient) WaitForMutationsSettled(ctx context.Context) bool {
	for {
		n, changed := c.pending.snapshot()
		if n == 0 {
			return true
		}

		select {
		case <-changed:
		case <-c.stopped:
			return c.pending.value() == 0
		case <-ctx.Done():
			return false
		}
	}
}

// ModifyNickname sends a rename request. The request stays pending until the
// network acknowledges it.
func (c *SessionClient) ModifyNickname(ctx context.Context, friend domain.FriendID, oldNickname, newNickname string) error {
	if !c.Running() {
		return domain.ErrSessionStopped
	}

	c.log.Infof("Nickname: %s : %s -> %s", friend, oldNickname, newNickname)
	c.pending.add()
	if err := c.transport.SetNickname(ctx, friend, newNickname); err != nil {
		c.pending.done()
		return fmt.Errorf("set nickname of %s: %w", friend, err)
	}

	return nil
}

func (c *SessionClient) Nicknames() []domain.FriendNickname {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.FriendNickname, len(c.nicknames))
	copy(out, c.nicknames)
	return out
}

func (c *SessionClient) Pending() int {
	return c.pending.value()
}

func (c *SessionClient) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionClient) Running() bool {
	select {
	case <-c.stopped:
		return false
	default:
		return true
	}
}

// Err is the reason the loop stopped, nil while running or after a
// requested stop.
func (c *SessionClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *SessionClient) onConnected(ctx context.Context, _ domain.SessionEvent) {
	c.log.Info("Connected")
	c.setState(domain.SessionConnected)

	if err := c.transport.LogOn(ctx, c.creds); err != nil {
		c.log.WithError(err).Error("Unable to send logon request")
		c.haltUnlessRequested(fmt.Errorf("%w: %w", domain.ErrLogonFailure, err))
		_ = c.transport.Disconnect()
	}
}

func (c *SessionClient) onDisconnected(_ context.Context, _ domain.SessionEvent) {
	c.log.Info("Disconnected")
	c.haltUnlessRequested(domain.ErrUnexpectedDisconnect)
}

func (c *SessionClient) onStreamClosed() {
	c.log.Debug("Session event stream closed")
	c.haltUnlessRequested(domain.ErrUnexpectedDisconnect)
}

func (c *SessionClient) onLoggedOn(ctx context.Context, ev domain.SessionEvent) {
	if ev.Result != domain.ResultOK {
		c.log.WithField("result", ev.Result).Error("Unable to logon")
		c.halt(fmt.Errorf("%w: %s", domain.ErrLogonFailure, ev.Result))
		_ = c.transport.Disconnect()
		return
	}

	c.log.Info("Successfully logged on")
	c.setState(domain.SessionLoggedOn)

	if err := c.transport.RequestNicknames(ctx); err != nil {
		c.log.WithError(err).Warn("Request nickname list")
	}
}

func (c *SessionClient) onLoggedOff(_ context.Context, ev domain.SessionEvent) {
	c.log.WithField("result", ev.Result).Info("Logged off")
	c.setState(domain.SessionLoggedOff)
	c.haltUnlessRequested(fmt.Errorf("%w: logged off: %s", domain.ErrUnexpectedDisconnect, ev.Result))
}

func (c *SessionClient) onFriendsList(_ context.Context, ev domain.SessionEvent) {
	c.log.WithField("friends", len(ev.Friends)).Info("Friends received")
}

func (c *SessionClient) onNicknameList(_ context.Context, ev domain.SessionEvent) {
	c.log.WithField("nicknames", len(ev.Nicknames)).Info("Nicknames received")

	snapshot := make([]domain.FriendNickname, len(ev.Nicknames))
	copy(snapshot, ev.Nicknames)

	c.mu.Lock()
	c.nicknames = snapshot
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *SessionClient) onNicknameAck(_ context.Context, ev domain.SessionEvent) {
	if !c.pending.done() {
		c.log.WithField("friend", ev.FriendID).Warn("Nickname acknowledgement without pending request")
		return
	}
	if ev.Result != "" && ev.Result != domain.ResultOK {
		c.log.WithField("friend", ev.FriendID).WithField("result", ev.Result).Warn("Nickname change rejected")
		return
	}
	c.log.WithField("friend", ev.FriendID).Info("Nickname change accepted")
}

func (c *SessionClient) nicknamesReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *SessionClient) setState(state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionStopped {
		c.state = state
	}
}

func (c *SessionClient) stopRequestedBeforeStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

func (c *SessionClient) haltUnlessRequested(cause error) {
	c.mu.Lock()
	requested := c.stopRequested
	c.mu.Unlock()

	if requested {
		c.halt(nil)
		return
	}
	c.halt(cause)
}

// halt flips the loop flag. The first cause wins.
func (c *SessionClient) halt(cause error) {
	c.haltOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.state = domain.SessionStopped
		c.mu.Unlock()
		close(c.stopped)
	})
}
