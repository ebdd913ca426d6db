package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/qstash"
)

type fakeWebhook struct {
	dest string
	body []byte
	err  error
}

func (f *fakeWebhook) Publish(ctx context.Context, destination string, body []byte) (qstashx.PublishResponse, error) {
	f.dest = destination
	f.body = body
	return qstashx.PublishResponse{MessageID: "m1"}, f.err
}

type fakeQueue struct {
	bodies [][]byte
	err    error
}

func (f *fakeQueue) Publish(ctx context.Context, body []byte) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

func sampleRecord() contractx.TurnRecord {
	return contractx.TurnRecord{
		ApplicationID:  "app-1",
		CustomerID:     "cust-1",
		Inbound:        "send the sanction letter",
		Reply:          "Here is your letter.",
		AgentName:      contractx.AgentPDF,
		PreviousStatus: "approved",
		Status:         "approved",
		IntentRule:     "pdf",
		OccurredAt:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestQStashSink(t *testing.T) {
	hook := &fakeWebhook{}
	sink := NewQStashSink(hook, " https://example.com/turns ")

	require.NoError(t, sink.RecordTurn(context.Background(), sampleRecord()))
	assert.Equal(t, "https://example.com/turns", hook.dest)

	var env Envelope
	require.NoError(t, json.Unmarshal(hook.body, &env))
	assert.Equal(t, TypeTurnCompleted, env.Type)
	assert.Equal(t, "app-1", env.Turn.ApplicationID)
	assert.Equal(t, contractx.AgentPDF, env.Turn.AgentName)

	hook.err = errors.New("unauthorized")
	assert.Error(t, sink.RecordTurn(context.Background(), sampleRecord()))
}

func TestAMQPSink(t *testing.T) {
	queue := &fakeQueue{}
	sink := NewAMQPSink(queue)

	require.NoError(t, sink.RecordTurn(context.Background(), sampleRecord()))
	require.Len(t, queue.bodies, 1)
	assert.Contains(t, string(queue.bodies[0]), `"status":"approved"`)

	queue.err = errors.New("broker gone")
	assert.ErrorIs(t, sink.RecordTurn(context.Background(), sampleRecord()), queue.err)
}
