package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
	"golang.org/x/term"
)

// conversation is the part of the orchestrator the REPL drives.
type conversation interface {
	StartApplication(ctx context.Context, customerID string, initialMessage string) (contractx.StartResult, error)
	ProcessMessage(ctx context.Context, applicationID string, message string, dataUpdate map[string]any) (contractx.ProcessResult, error)
	GetApplication(ctx context.Context, applicationID string) (*statex.LoanApplication, bool)
	ListApplications(ctx context.Context) ([]string, error)
}

// turnHistory reads back recorded turns. Nil when no transcript is configured.
type turnHistory interface {
	ListTurns(ctx context.Context, applicationID string) ([]contractx.TurnRecord, error)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a loan application and chat with it from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		customerID, _ := cmd.Flags().GetString("customer")
		first, _ := cmd.Flags().GetString("message")
		plain, _ := cmd.Flags().GetBool("plain")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		render := plainRenderer
		if !plain && term.IsTerminal(int(os.Stdout.Fd())) {
			render = newMarkdownRenderer()
		}

		var hist turnHistory
		if a.history != nil {
			hist = a.history
		}
		return runChat(ctx, a.orch, hist, customerID, first, cmd.InOrStdin(), cmd.OutOrStdout(), render)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("customer", "", "customer id for the new application")
	chatCmd.Flags().String("message", "", "first message (defaults to the configured greeting)")
	chatCmd.Flags().Bool("plain", false, "print replies without markdown rendering")
	_ = chatCmd.MarkFlagRequired("customer")
}

type renderFunc func(markdown string) string

func plainRenderer(markdown string) string {
	return markdown + "\n"
}

func newMarkdownRenderer() renderFunc {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return plainRenderer
	}
	return func(markdown string) string {
		out, err := r.Render(markdown)
		if err != nil {
			return plainRenderer(markdown)
		}
		return out
	}
}

// runChat reads one message per line. "/status" prints the application,
// "/history" its recorded turns, "/applications" every application id and
// "/quit" ends the session.
func runChat(
	ctx context.Context,
	conv conversation,
	hist turnHistory,
	customerID string,
	first string,
	in io.Reader,
	out io.Writer,
	render renderFunc,
) error {
	start, err := conv.StartApplication(ctx, customerID, first)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "application %s\n", start.ApplicationID)
	printTurn(out, start.Response, render)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/status":
			app, ok := conv.GetApplication(ctx, start.ApplicationID)
			if !ok {
				fmt.Fprintln(out, contractx.NotFoundMessage)
				continue
			}
			raw, err := json.MarshalIndent(app, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(raw))
			continue
		case "/history":
			printHistory(ctx, out, hist, start.ApplicationID)
			continue
		case "/applications":
			ids, err := conv.ListApplications(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			continue
		}

		res, err := conv.ProcessMessage(ctx, start.ApplicationID, line, nil)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if !res.OK() {
			fmt.Fprintln(out, res.Error)
			continue
		}
		printTurn(out, *res.Turn, render)
	}
}

func printHistory(ctx context.Context, out io.Writer, hist turnHistory, applicationID string) {
	if hist == nil {
		fmt.Fprintln(out, "history is disabled, set DATABASE_DSN to record turns")
		return
	}
	turns, err := hist.ListTurns(ctx, applicationID)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	for _, rec := range turns {
		fmt.Fprintf(out, "%s %s -> %s [%s]\n  > %s\n  < %s\n",
			rec.OccurredAt.Format("15:04:05"),
			rec.PreviousStatus,
			rec.Status,
			rec.AgentName,
			rec.Inbound,
			rec.Reply,
		)
	}
}

func printTurn(out io.Writer, turn contractx.TurnResult, render renderFunc) {
	fmt.Fprintf(out, "[%s | %s]\n", turn.AgentName, turn.Status)
	fmt.Fprint(out, render(turn.Message))
	if turn.ActionRequired != nil {
		fmt.Fprintf(out, "action required: %v\n", turn.ActionRequired)
	}
}
