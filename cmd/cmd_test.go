package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

type fakeConversation struct {
	app      *statex.LoanApplication
	messages []string
	failOn   string
}

func (f *fakeConversation) StartApplication(ctx context.Context, customerID string, initialMessage string) (contractx.StartResult, error) {
	f.app = &statex.LoanApplication{ApplicationID: "app-1", Customer: statex.Customer{CustomerID: customerID}, Status: statex.StatusInitiated}
	return contractx.StartResult{
		ApplicationID: "app-1",
		Response:      contractx.TurnResult{AgentName: contractx.AgentMaster, Message: "Welcome!", Status: "initiated"},
	}, nil
}

func (f *fakeConversation) ProcessMessage(ctx context.Context, applicationID string, message string, dataUpdate map[string]any) (contractx.ProcessResult, error) {
	f.messages = append(f.messages, message)
	if message == f.failOn {
		return contractx.ProcessResult{}, errors.New("handler failed: agent=sales")
	}
	turn := contractx.TurnResult{AgentName: contractx.AgentSales, Message: "Noted: " + message, Status: "sales_discussion", ActionRequired: "share_pan"}
	return contractx.ProcessResult{Kind: contractx.ResultOK, Turn: &turn}, nil
}

func (f *fakeConversation) GetApplication(ctx context.Context, applicationID string) (*statex.LoanApplication, bool) {
	if f.app == nil {
		return nil, false
	}
	return f.app.Clone(), true
}

func (f *fakeConversation) ListApplications(ctx context.Context) ([]string, error) {
	if f.app == nil {
		return nil, nil
	}
	return []string{f.app.ApplicationID}, nil
}

type fakeHistory struct {
	asked []string
}

func (f *fakeHistory) ListTurns(ctx context.Context, applicationID string) ([]contractx.TurnRecord, error) {
	f.asked = append(f.asked, applicationID)
	return []contractx.TurnRecord{{
		ApplicationID:  applicationID,
		Inbound:        "My PAN is ABCDE1234F",
		Reply:          "Thanks, verifying now.",
		AgentName:      contractx.AgentVerification,
		PreviousStatus: "initiated",
		Status:         "kyc_verification",
		OccurredAt:     time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
	}}, nil
}

func TestRunChat(t *testing.T) {
	conv := &fakeConversation{failOn: "boom"}
	in := strings.NewReader("I want a loan\n\nboom\n/status\n/quit\nnever sent\n")
	var out bytes.Buffer

	err := runChat(context.Background(), conv, nil, "cust-1", "", in, &out, plainRenderer)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "application app-1")
	assert.Contains(t, text, "[master | initiated]")
	assert.Contains(t, text, "Noted: I want a loan")
	assert.Contains(t, text, "action required: share_pan")
	assert.Contains(t, text, "error: handler failed")
	assert.Contains(t, text, `"customer_id": "cust-1"`)
	assert.Equal(t, []string{"I want a loan", "boom"}, conv.messages)
}

func TestRunChatEOF(t *testing.T) {
	conv := &fakeConversation{}
	var out bytes.Buffer

	err := runChat(context.Background(), conv, nil, "cust-1", "hi", strings.NewReader("hello"), &out, plainRenderer)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, conv.messages)
}

func TestRunChatHistoryAndApplications(t *testing.T) {
	conv := &fakeConversation{}
	hist := &fakeHistory{}
	var out bytes.Buffer

	in := strings.NewReader("/history\n/applications\n/quit\n")
	err := runChat(context.Background(), conv, hist, "cust-1", "", in, &out, plainRenderer)
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, []string{"app-1"}, hist.asked)
	assert.Contains(t, text, "09:30:00 initiated -> kyc_verification [verification]")
	assert.Contains(t, text, "> My PAN is ABCDE1234F")
	assert.Contains(t, text, "< Thanks, verifying now.")
	assert.Contains(t, text, "app-1\n")
	assert.Empty(t, conv.messages)
}

func TestRunChatHistoryDisabled(t *testing.T) {
	conv := &fakeConversation{}
	var out bytes.Buffer

	err := runChat(context.Background(), conv, nil, "cust-1", "", strings.NewReader("/history\n"), &out, plainRenderer)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "history is disabled")
}

func TestMetricsRouter(t *testing.T) {
	srv := httptest.NewServer(newMetricsRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
