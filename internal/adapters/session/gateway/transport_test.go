package gateway

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bnema/coplay/internal/adapters/session/gateway/gatewaytest"
	"github.com/bnema/coplay/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportDeliversGatewayEventsInOrder(t *testing.T) {
	t.Parallel()

	server := gatewaytest.NewServer("hunter2", []gatewaytest.Nickname{
		{FriendID: "f-1", AccountID: 111, Nickname: "07MCPlayer"},
	})
	t.Cleanup(server.Close)

	transport := New(server.WebsocketURL(), quietLogger())
	ctx := context.Background()

	require.NoError(t, transport.Connect(ctx))
	assert.Equal(t, domain.EventConnected, next(t, transport).Kind)

	require.NoError(t, transport.LogOn(ctx, domain.Credentials{Username: "bot", Password: "hunter2", LoginID: domain.DefaultLoginID}))
	loggedOn := next(t, transport)
	assert.Equal(t, domain.EventLoggedOn, loggedOn.Kind)
	assert.Equal(t, domain.ResultOK, loggedOn.Result)

	friends := next(t, transport)
	assert.Equal(t, domain.EventFriendsList, friends.Kind)
	assert.Equal(t, []domain.FriendID{"f-1"}, friends.Friends)

	require.NoError(t, transport.RequestNicknames(ctx))
	nicknames := next(t, transport)
	assert.Equal(t, domain.EventNicknameList, nicknames.Kind)
	assert.Equal(t, []domain.FriendNickname{{FriendID: "f-1", AccountID: 111, Nickname: "07MCPlayer"}}, nicknames.Nicknames)

	require.NoError(t, transport.SetNickname(ctx, "f-1", "13MCPlayer"))
	ack := next(t, transport)
	assert.Equal(t, domain.EventNicknameAck, ack.Kind)
	assert.Equal(t, domain.FriendID("f-1"), ack.FriendID)

	assert.Equal(t, []string{"f-1=13MCPlayer"}, server.Renames())
	assert.Equal(t, []uint32{domain.DefaultLoginID}, server.LoginIDs())

	require.NoError(t, transport.Disconnect())
	assert.Equal(t, domain.EventDisconnected, next(t, transport).Kind)
	assertClosed(t, transport)
	require.NoError(t, transport.Disconnect())
}

func TestTransportReportsRejectedLogon(t *testing.T) {
	t.Parallel()

	server := gatewaytest.NewServer("hunter2", nil)
	t.Cleanup(server.Close)

	transport := New(server.WebsocketURL(), quietLogger())
	require.NoError(t, transport.Connect(context.Background()))
	next(t, transport)

	require.NoError(t, transport.LogOn(context.Background(), domain.Credentials{Username: "bot", Password: "wrong"}))
	ev := next(t, transport)
	assert.Equal(t, domain.EventLoggedOn, ev.Kind)
	assert.Equal(t, "InvalidPassword", ev.Result)

	require.NoError(t, transport.Disconnect())
}

func TestTransportClosesEventsWhenGatewayDrops(t *testing.T) {
	t.Parallel()

	server := gatewaytest.NewServer("hunter2", nil)
	t.Cleanup(server.Close)

	transport := New(server.WebsocketURL(), quietLogger())
	require.NoError(t, transport.Connect(context.Background()))
	next(t, transport)

	// The logon round trip guarantees the server registered the connection.
	require.NoError(t, transport.LogOn(context.Background(), domain.Credentials{Password: "hunter2"}))
	next(t, transport)
	next(t, transport)

	server.Drop()

	assert.Equal(t, domain.EventDisconnected, next(t, transport).Kind)
	assertClosed(t, transport)

	require.NoError(t, transport.Disconnect())
	err := transport.SetNickname(context.Background(), "f-1", "01MCX")
	assert.ErrorIs(t, err, errNotConnected)
}

func TestTransportConnectFailure(t *testing.T) {
	t.Parallel()

	transport := New("ws://127.0.0.1:1/gateway", quietLogger())
	transport.HandshakeTimeout = 200 * time.Millisecond

	err := transport.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "dial session gateway")

	require.NoError(t, transport.Disconnect())
	assertClosed(t, transport)
}

func TestSendBeforeConnectFails(t *testing.T) {
	t.Parallel()

	transport := New("ws://127.0.0.1:1/gateway", quietLogger())
	err := transport.RequestNicknames(context.Background())
	assert.ErrorIs(t, err, errNotConnected)
}

func TestInboundFrameMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		frame  inboundFrame
		want   domain.SessionEvent
		wantOK bool
	}{
		{
			name:   "logged off",
			frame:  inboundFrame{Type: "logged_off", Result: "LoggedInElsewhere"},
			want:   domain.SessionEvent{Kind: domain.EventLoggedOff, Result: "LoggedInElsewhere"},
			wantOK: true,
		},
		{
			name:   "ack with failure",
			frame:  inboundFrame{Type: "nickname_ack", FriendID: "f-9", Result: "Fail"},
			want:   domain.SessionEvent{Kind: domain.EventNicknameAck, FriendID: "f-9", Result: "Fail"},
			wantOK: true,
		},
		{name: "remote connected frame", frame: inboundFrame{Type: "connected"}},
		{name: "unknown", frame: inboundFrame{Type: "chat_message"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.frame.event()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func next(t *testing.T, transport *Transport) domain.SessionEvent {
	t.Helper()

	select {
	case ev, ok := <-transport.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gateway event")
		return domain.SessionEvent{}
	}
}

func assertClosed(t *testing.T, transport *Transport) {
	t.Helper()

	select {
	case _, ok := <-transport.Events():
		assert.False(t, ok, "expected closed event stream")
	case <-time.After(2 * time.Second):
		t.Fatal("event stream was not closed")
	}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
