// Package transcript keeps an append-only Postgres log of completed turns.
// Applications themselves stay in memory; the transcript is for audit and
// analytics only.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
)

type Config struct {
	DSN     string        `split_words:"true"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

type turnRow struct {
	bun.BaseModel `bun:"table:loan_turns,alias:lt"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ApplicationID  string    `bun:"application_id,notnull"`
	CustomerID     string    `bun:"customer_id,notnull"`
	Inbound        string    `bun:"inbound,notnull"`
	Reply          string    `bun:"reply,notnull"`
	AgentName      string    `bun:"agent_name,notnull"`
	ChainedAgent   string    `bun:"chained_agent"`
	PreviousStatus string    `bun:"previous_status,notnull"`
	Status         string    `bun:"status,notnull"`
	IntentRule     string    `bun:"intent_rule"`
	OccurredAt     time.Time `bun:"occurred_at,notnull"`
}

func toRow(rec contractx.TurnRecord) *turnRow {
	return &turnRow{
		ApplicationID:  rec.ApplicationID,
		CustomerID:     rec.CustomerID,
		Inbound:        rec.Inbound,
		Reply:          rec.Reply,
		AgentName:      string(rec.AgentName),
		ChainedAgent:   string(rec.ChainedAgent),
		PreviousStatus: rec.PreviousStatus,
		Status:         rec.Status,
		IntentRule:     rec.IntentRule,
		OccurredAt:     rec.OccurredAt.UTC(),
	}
}

func (r *turnRow) record() contractx.TurnRecord {
	return contractx.TurnRecord{
		ApplicationID:  r.ApplicationID,
		CustomerID:     r.CustomerID,
		Inbound:        r.Inbound,
		Reply:          r.Reply,
		AgentName:      contractx.AgentName(r.AgentName),
		ChainedAgent:   contractx.AgentName(r.ChainedAgent),
		PreviousStatus: r.PreviousStatus,
		Status:         r.Status,
		IntentRule:     r.IntentRule,
		OccurredAt:     r.OccurredAt,
	}
}

var _ contractx.TurnSink = (*BunStore)(nil)

type BunStore struct {
	db      *bun.DB
	timeout time.Duration
}

// NewBunStore wraps an existing bun handle.
func NewBunStore(db *bun.DB, timeout time.Duration) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BunStore{db: db, timeout: timeout}, nil
}

// Open connects to Postgres through pgdriver.
func Open(cfg Config) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: database dsn is required", contractx.ErrValidation)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewBunStore(bun.NewDB(sqldb, pgdialect.New()), cfg.Timeout)
}

func (s *BunStore) CreateSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.NewCreateTable().
		Model((*turnRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create loan_turns: %w", err)
	}
	return nil
}

func (s *BunStore) RecordTurn(ctx context.Context, rec contractx.TurnRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.NewInsert().
		Model(toRow(rec)).
		Returning("NULL").
		Exec(ctx); err != nil {
		return fmt.Errorf("insert turn for application=%s: %w", rec.ApplicationID, err)
	}
	return nil
}

// ListTurns returns an application's turns oldest first.
func (s *BunStore) ListTurns(ctx context.Context, applicationID string) ([]contractx.TurnRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []turnRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list turns for application=%s: %w", applicationID, err)
	}

	out := make([]contractx.TurnRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}
