package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/segmentio/kafka-go"
)

const eventType = "coplay.rename.v1"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends one audit record per rename, keyed by friend so renames of
// the same friend stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

var _ ports.RenameSink = (*Publisher)(nil)

type record struct {
	Type        string    `json:"type"`
	Tracked     int64     `json:"tracked_account"`
	FriendID    string    `json:"friend_id"`
	AccountID   int64     `json:"account_id"`
	OldNickname string    `json:"old_nickname"`
	NewNickname string    `json:"new_nickname"`
	Count       string    `json:"count"`
	At          time.Time `json:"at"`
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		now: time.Now,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, tracked domain.AccountID, renames []domain.Rename) error {
	if len(renames) == 0 {
		return nil
	}

	at := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(renames))
	for _, rename := range renames {
		value, err := json.Marshal(record{
			Type:        eventType,
			Tracked:     int64(tracked),
			FriendID:    string(rename.FriendID),
			AccountID:   int64(rename.AccountID),
			OldNickname: rename.OldNickname,
			NewNickname: rename.NewNickname,
			Count:       rename.NewCount,
			At:          at,
		})
		if err != nil {
			return fmt.Errorf("encode rename audit record: %w", err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(rename.FriendID),
			Value: value,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(eventType)},
				{Key: "tracked_account", Value: []byte(strconv.FormatInt(int64(tracked), 10))},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d rename audit records: %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
