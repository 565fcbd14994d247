package ports

import (
	"context"

	"github.com/bnema/coplay/internal/domain"
)

// SessionTransport is the social-network connection. Every notification is
// delivered, in transport order, on the single Events channel. The channel is
// closed once the connection is gone.
type SessionTransport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	LogOn(ctx context.Context, creds domain.Credentials) error
	RequestNicknames(ctx context.Context) error
	SetNickname(ctx context.Context, friend domain.FriendID, nickname string) error
	Events() <-chan domain.SessionEvent
}
