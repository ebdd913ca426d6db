// Package events publishes completed turns to external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/qstash"
)

const TypeTurnCompleted = "loan.turn.completed"

// Envelope is the JSON body every sink sends.
type Envelope struct {
	Type string               `json:"type"`
	Turn contractx.TurnRecord `json:"turn"`
}

func Encode(rec contractx.TurnRecord) ([]byte, error) {
	body, err := json.Marshal(Envelope{Type: TypeTurnCompleted, Turn: rec})
	if err != nil {
		return nil, fmt.Errorf("encode turn event: %w", err)
	}
	return body, nil
}

type WebhookPublisher interface {
	Publish(ctx context.Context, destination string, body []byte) (qstashx.PublishResponse, error)
}

var _ contractx.TurnSink = (*QStashSink)(nil)

// QStashSink hands turn events to QStash, which delivers them to a webhook.
type QStashSink struct {
	client      WebhookPublisher
	destination string
}

func NewQStashSink(client WebhookPublisher, destination string) *QStashSink {
	return &QStashSink{client: client, destination: strings.TrimSpace(destination)}
}

func (s *QStashSink) RecordTurn(ctx context.Context, rec contractx.TurnRecord) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	if _, err := s.client.Publish(ctx, s.destination, body); err != nil {
		return err
	}
	return nil
}

type QueuePublisher interface {
	Publish(ctx context.Context, body []byte) error
}

var _ contractx.TurnSink = (*AMQPSink)(nil)

type AMQPSink struct {
	publisher QueuePublisher
}

func NewAMQPSink(publisher QueuePublisher) *AMQPSink {
	return &AMQPSink{publisher: publisher}
}

func (s *AMQPSink) RecordTurn(ctx context.Context, rec contractx.TurnRecord) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, body)
}
