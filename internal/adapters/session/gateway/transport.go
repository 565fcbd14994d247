package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	eventBuffer             = 64
	readLimit               = 4 << 20
)

var errNotConnected = errors.New("session gateway not connected")

// Transport speaks JSON frames with a social-network gateway over a
// websocket. Events are delivered in arrival order; the channel is closed
// once the connection ends.
type Transport struct {
	URL              string
	Header           http.Header
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	log logrus.FieldLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	events  chan domain.SessionEvent
	quit    chan struct{}

	quitOnce  sync.Once
	closeOnce sync.Once
}

func New(url string, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{
		URL:    url,
		log:    log.WithField("component", "gateway"),
		events: make(chan domain.SessionEvent, eventBuffer),
		quit:   make(chan struct{}),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: t.handshakeTimeout(),
		}
	}

	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if resp != nil && resp.Body != nil {
		defer func() {
			_ = resp.Body.Close()
		}()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial session gateway: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial session gateway: %w", err)
	}
	conn.SetReadLimit(readLimit)

	t.mu.Lock()
	if t.isQuitting() {
		t.mu.Unlock()
		_ = conn.Close()
		return errors.New("session gateway disconnected before connect completed")
	}
	t.conn = conn
	t.started = true
	t.mu.Unlock()

	t.emit(domain.SessionEvent{Kind: domain.EventConnected})
	go t.readLoop(conn)

	return nil
}

// Disconnect closes the connection. It is safe to call more than once and
// before Connect.
func (t *Transport) Disconnect() error {
	t.quitOnce.Do(func() { close(t.quit) })

	t.mu.Lock()
	conn := t.conn
	started := t.started
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		if !started {
			t.closeEvents()
		}
		return nil
	}

	deadline := time.Now().Add(t.writeTimeout())
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close session gateway: %w", err)
	}
	return nil
}

func (t *Transport) LogOn(ctx context.Context, creds domain.Credentials) error {
	return t.send(ctx, outboundFrame{
		Type:     frameLogOn,
		Username: creds.Username,
		Password: creds.Password,
		LoginID:  creds.LoginID,
	})
}

func (t *Transport) RequestNicknames(ctx context.Context) error {
	return t.send(ctx, outboundFrame{Type: frameRequestNicknames})
}

func (t *Transport) SetNickname(ctx context.Context, friend domain.FriendID, nickname string) error {
	return t.send(ctx, outboundFrame{
		Type:     frameSetNickname,
		FriendID: string(friend),
		Nickname: nickname,
	})
}

func (t *Transport) Events() <-chan domain.SessionEvent {
	return t.events
}

func (t *Transport) send(ctx context.Context, frame outboundFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("send %s: %w", frame.Type, errNotConnected)
	}

	deadline := time.Now().Add(t.writeTimeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send %s: %w", frame.Type, err)
	}
	if err := t.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", frame.Type, err)
	}

	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.closeEvents()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !t.isQuitting() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.log.WithError(err).Warn("session gateway read failed")
			}
			t.emit(domain.SessionEvent{Kind: domain.EventDisconnected})
			return
		}

		ev, ok := frame.event()
		if !ok {
			t.log.WithField("type", frame.Type).Debug("ignore unknown gateway frame")
			continue
		}
		if !t.emit(ev) {
			return
		}
	}
}

// emit queues an event unless the transport is shutting down and nobody
// drains the channel anymore.
func (t *Transport) emit(ev domain.SessionEvent) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.quit:
		select {
		case t.events <- ev:
			return true
		default:
			return false
		}
	}
}

func (t *Transport) closeEvents() {
	t.closeOnce.Do(func() { close(t.events) })
}

func (t *Transport) isQuitting() bool {
	select {
	case <-t.quit:
		return true
	default:
		return false
	}
}

func (t *Transport) handshakeTimeout() time.Duration {
	if t.HandshakeTimeout > 0 {
		return t.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (t *Transport) writeTimeout() time.Duration {
	if t.WriteTimeout > 0 {
		return t.WriteTimeout
	}
	return defaultWriteTimeout
}
