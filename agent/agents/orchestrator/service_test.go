package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/Chative-Loan-Advisor/agent/agents/handler"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	lockx "github.com/tanpawarit/Chative-Loan-Advisor/agent/lock"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

type respondFunc func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error)

type scriptedHandler struct {
	name    contractx.AgentName
	respond respondFunc

	mu       sync.Mutex
	messages []string
}

func (h *scriptedHandler) Name() contractx.AgentName {
	return h.name
}

func (h *scriptedHandler) Process(ctx context.Context, app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
	h.mu.Lock()
	h.messages = append(h.messages, message)
	h.mu.Unlock()

	if h.respond != nil {
		return h.respond(app, message)
	}
	return contractx.AgentResponse{AgentName: h.name, Message: "reply from " + string(h.name)}, nil
}

func (h *scriptedHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

type recordingSink struct {
	mu      sync.Mutex
	records []contractx.TurnRecord
}

func (s *recordingSink) RecordTurn(ctx context.Context, rec contractx.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	store    *statex.MemoryStore
	handlers map[contractx.AgentName]*scriptedHandler
	sink     *recordingSink
}

func newFixture(t *testing.T, cfg Config, override map[contractx.AgentName]respondFunc) *fixture {
	t.Helper()

	handlers := make(map[contractx.AgentName]*scriptedHandler, len(contractx.AllAgents))
	list := make([]contractx.Handler, 0, len(contractx.AllAgents))
	for _, name := range contractx.AllAgents {
		h := &scriptedHandler{name: name, respond: override[name]}
		handlers[name] = h
		list = append(list, h)
	}
	reg, err := handler.NewRegistry(list...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	clock := func() time.Time {
		return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	}

	seq := 0
	var idMu sync.Mutex
	store := statex.NewMemoryStore(
		statex.WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			seq++
			return "app-" + string(rune('0'+seq))
		}),
		statex.WithClock(clock),
	)
	sink := &recordingSink{}

	orch, err := New(store, reg, cfg, WithSinks(sink), WithClock(clock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{orch: orch, store: store, handlers: handlers, sink: sink}
}

func greetingMaster(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
	return contractx.AgentResponse{
		AgentName: contractx.AgentMaster,
		Message:   "Welcome to the loan desk. How much would you like to borrow?",
	}, nil
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	reg, err := handler.NewRegistry(&scriptedHandler{name: contractx.AgentMaster})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := New(nil, reg, Config{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for nil store, got %v", err)
	}
	if _, err := New(statex.NewMemoryStore(), nil, Config{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for nil registry, got %v", err)
	}
}

func TestNewLockTTLCoversTurn(t *testing.T) {
	t.Parallel()

	reg, err := handler.NewRegistry(&scriptedHandler{name: contractx.AgentMaster})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	cfg := Config{HandlerTimeout: 30 * time.Second, LockTTL: time.Minute}

	if got, want := cfg.MinLockTTL(), 90*time.Second; got != want {
		t.Fatalf("MinLockTTL() = %s, want %s", got, want)
	}
	if got := cfg.EffectiveLockTTL(); got != 90*time.Second {
		t.Fatalf("EffectiveLockTTL() = %s, want raised to 90s", got)
	}
	if got := (Config{HandlerTimeout: time.Second, LockTTL: 5 * time.Minute}).EffectiveLockTTL(); got != 5*time.Minute {
		t.Fatalf("EffectiveLockTTL() = %s, want configured 5m kept", got)
	}

	short := lockx.NewManager(lockx.WithTTL(time.Minute))
	if _, err := New(statex.NewMemoryStore(), reg, cfg, WithLocks(short)); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for a lock shorter than a turn, got %v", err)
	}

	long := lockx.NewManager(lockx.WithTTL(2 * time.Minute))
	if _, err := New(statex.NewMemoryStore(), reg, cfg, WithLocks(long)); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(statex.NewMemoryStore(), reg, cfg); err != nil {
		t.Fatalf("New() with default locks error = %v", err)
	}
}

func TestStartApplicationRunsGreetingTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{contractx.AgentMaster: greetingMaster})

	res, err := f.orch.StartApplication(context.Background(), "cust-1", "")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}
	if res.ApplicationID == "" {
		t.Fatal("expected an application id")
	}
	if res.Response.AgentName != contractx.AgentMaster {
		t.Fatalf("unexpected agent: %s", res.Response.AgentName)
	}
	if res.Response.Status != "initiated" {
		t.Fatalf("unexpected status: %s", res.Response.Status)
	}
	if strings.TrimSpace(res.Response.Message) == "" {
		t.Fatal("expected a greeting message")
	}
	if got := f.handlers[contractx.AgentMaster].calls(); len(got) != 1 || got[0] != "Hello" {
		t.Fatalf("master should receive the default greeting, got %#v", got)
	}
	if res.Response.ApplicationData == nil || res.Response.ApplicationData.Customer.CustomerID != "cust-1" {
		t.Fatalf("unexpected application data: %#v", res.Response.ApplicationData)
	}
}

func TestStartApplicationRequiresCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	if _, err := f.orch.StartApplication(context.Background(), "  ", "hi"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessMessagePANMovesToVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{contractx.AgentMaster: greetingMaster})
	ctx := context.Background()

	start, err := f.orch.StartApplication(ctx, "cust-1", "")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	res, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "My PAN is ABCDE1234F", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected ok result, got %#v", res)
	}
	if res.Turn.Status != "kyc_verification" {
		t.Fatalf("unexpected status: %s", res.Turn.Status)
	}
	if res.Turn.AgentName != contractx.AgentVerification {
		t.Fatalf("unexpected agent: %s", res.Turn.AgentName)
	}
	if res.Turn.ApplicationData.Customer.PAN != "ABCDE1234F" {
		t.Fatalf("unexpected pan: %q", res.Turn.ApplicationData.Customer.PAN)
	}

	app, ok := f.orch.GetApplication(ctx, start.ApplicationID)
	if !ok {
		t.Fatal("GetApplication() should find the application")
	}
	if app.Customer.PAN != "ABCDE1234F" || app.Status != statex.StatusKYCVerification {
		t.Fatalf("unexpected stored application: %#v", app)
	}
}

func TestProcessMessageUnknownApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)

	res, err := f.orch.ProcessMessage(context.Background(), "does-not-exist", "hello", map[string]any{"name": "Asha"})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Kind != contractx.ResultNotFound || res.OK() {
		t.Fatalf("expected not found, got %#v", res)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(raw) != `{"error":"Application not found"}` {
		t.Fatalf("unexpected json: %s", raw)
	}

	ids, _ := f.store.List(context.Background())
	if len(ids) != 0 {
		t.Fatalf("store must stay untouched, got %v", ids)
	}
	for name, h := range f.handlers {
		if len(h.calls()) != 0 {
			t.Fatalf("handler %s must not run", name)
		}
	}
	if len(f.sink.records) != 0 {
		t.Fatalf("no turn should be recorded, got %d", len(f.sink.records))
	}
}

func TestProcessMessageDataUpdateAppliesBeforeRouting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	res, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "please check my credit score", map[string]any{
		"status":       "kyc_verification",
		"name":         "Asha",
		"loan_amount":  "7,50,000",
		"unknown_flag": true,
	})
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Turn.Status != "underwriting" {
		t.Fatalf("explicit status should let the underwriting guard pass, got %s", res.Turn.Status)
	}
	data := res.Turn.ApplicationData
	if data.Customer.Name != "Asha" || data.LoanAmount != 750000 {
		t.Fatalf("unexpected application: %#v", data)
	}
	if got := f.handlers[contractx.AgentUnderwriting].calls(); len(got) != 1 {
		t.Fatalf("expected underwriting handler once, got %#v", got)
	}
}

func TestProcessMessageNameExtractedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	if _, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "Hi, my name is Asha.", nil); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	res, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "my name is Bob", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if got := res.Turn.ApplicationData.Customer.Name; got != "Asha" {
		t.Fatalf("name must not be overwritten by extraction, got %q", got)
	}
}

func TestProcessMessageHandlerUpdatesAndChaining(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{
		contractx.AgentVerification: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			app.Customer.Name = "handlers cannot write directly"
			return contractx.AgentResponse{
				Message:        "PAN verified.",
				DataUpdates:    map[string]any{"status": "underwriting"},
				NextAgent:      "underwriting_agent",
				ActionRequired: map[string]any{"type": "upload_document", "document": "aadhar"},
			}, nil
		},
		contractx.AgentUnderwriting: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			if app.Status != statex.StatusUnderwriting {
				return contractx.AgentResponse{}, errors.New("chained handler must see merged status")
			}
			return contractx.AgentResponse{
				AgentName:   contractx.AgentUnderwriting,
				Message:     "Credit score fetched: 780.",
				DataUpdates: map[string]any{"credit_score": 780, "status": "eligibility_check"},
			}, nil
		},
	})
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	res, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "kyc please", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Turn.AgentName != contractx.AgentVerification {
		t.Fatalf("agent name should be the first handler, got %s", res.Turn.AgentName)
	}
	if res.Turn.Message != "PAN verified.\n\nCredit score fetched: 780." {
		t.Fatalf("unexpected message: %q", res.Turn.Message)
	}
	if res.Turn.Status != "eligibility_check" {
		t.Fatalf("unexpected status: %s", res.Turn.Status)
	}
	if res.Turn.ApplicationData.Customer.CreditScore != 780 {
		t.Fatalf("chained updates not merged: %#v", res.Turn.ApplicationData.Customer)
	}
	if res.Turn.ApplicationData.Customer.Name != "" {
		t.Fatalf("direct handler mutation leaked: %q", res.Turn.ApplicationData.Customer.Name)
	}
	action, ok := res.Turn.ActionRequired.(map[string]any)
	if !ok || action["type"] != "upload_document" {
		t.Fatalf("unexpected action: %#v", res.Turn.ActionRequired)
	}
	if got := f.handlers[contractx.AgentUnderwriting].calls(); len(got) != 1 || got[0] != "" {
		t.Fatalf("chained handler should get an empty message, got %#v", got)
	}

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	last := f.sink.records[len(f.sink.records)-1]
	if last.ChainedAgent != contractx.AgentUnderwriting || last.IntentRule != "verification" {
		t.Fatalf("unexpected turn record: %#v", last)
	}
	if last.PreviousStatus != "initiated" || last.Status != "eligibility_check" {
		t.Fatalf("unexpected record statuses: %#v", last)
	}
}

func TestProcessMessageUnregisteredNextAgent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{
		contractx.AgentMaster: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			return contractx.AgentResponse{
				AgentName: contractx.AgentMaster,
				Message:   "Hello there.",
				NextAgent: "closing_agent",
			}, nil
		},
	})
	ctx := context.Background()

	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}
	if start.Response.Message != "Hello there." {
		t.Fatalf("unexpected message: %q", start.Response.Message)
	}
}

func TestProcessMessageHandlerFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("credit bureau unavailable")
	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{
		contractx.AgentSales: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			return contractx.AgentResponse{}, cause
		},
	})
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	res, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "I need a loan of 5 lakh", nil)
	if !errors.Is(err, contractx.ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to be preserved, got %v", err)
	}
	if res.OK() {
		t.Fatalf("failed turn must not report ok: %#v", res)
	}
}

func TestProcessMessageHandlerTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{HandlerTimeout: 20 * time.Millisecond}, map[contractx.AgentName]respondFunc{
		contractx.AgentSales: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			time.Sleep(300 * time.Millisecond)
			return contractx.AgentResponse{Message: "too late"}, nil
		},
	})
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	_, err = f.orch.ProcessMessage(ctx, start.ApplicationID, "what is the interest rate", nil)
	if !errors.Is(err, contractx.ErrHandlerFailed) || !errors.Is(err, contractx.ErrHandlerTimeout) {
		t.Fatalf("expected handler timeout, got %v", err)
	}
}

func TestProcessMessageSerializesSameApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, map[contractx.AgentName]respondFunc{
		contractx.AgentMaster: func(app *statex.LoanApplication, message string) (contractx.AgentResponse, error) {
			time.Sleep(time.Millisecond)
			return contractx.AgentResponse{
				AgentName:   contractx.AgentMaster,
				Message:     "counted",
				DataUpdates: map[string]any{"credit_score": app.Customer.CreditScore + 1},
			}, nil
		},
	})
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	const turns = 20
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.ProcessMessage(ctx, start.ApplicationID, "hi", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	app, ok := f.orch.GetApplication(ctx, start.ApplicationID)
	if !ok {
		t.Fatal("GetApplication() should find the application")
	}
	// One increment from the start turn plus one per concurrent turn.
	if app.Customer.CreditScore != turns+1 {
		t.Fatalf("lost update: credit_score = %d, want %d", app.Customer.CreditScore, turns+1)
	}
}

func TestGetApplicationReturnsCopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	start, err := f.orch.StartApplication(ctx, "cust-1", "hi")
	if err != nil {
		t.Fatalf("StartApplication() error = %v", err)
	}

	app, ok := f.orch.GetApplication(ctx, start.ApplicationID)
	if !ok {
		t.Fatal("GetApplication() should find the application")
	}
	if app.UpdatedAt.Before(app.CreatedAt) {
		t.Fatalf("updated_at %s precedes created_at %s", app.UpdatedAt, app.CreatedAt)
	}
	app.Status = statex.StatusRejected

	again, _ := f.orch.GetApplication(ctx, start.ApplicationID)
	if again.Status != statex.StatusInitiated {
		t.Fatalf("caller mutation leaked into the store: %s", again.Status)
	}

	ids, err := f.orch.ListApplications(ctx)
	if err != nil {
		t.Fatalf("ListApplications() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != start.ApplicationID {
		t.Fatalf("ListApplications() = %v", ids)
	}

	if _, ok := f.orch.GetApplication(ctx, "missing"); ok {
		t.Fatal("unknown application should be absent")
	}
}
