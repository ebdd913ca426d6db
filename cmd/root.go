package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/config"
	logx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "loanadvisor",
	Short: "Conversational loan application engine",
	Long:  `loanadvisor walks a customer through a loan application, handing each turn to the stage agent that owns the application's current status.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env")
		configx.SetEnvFile(envFile)

		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return err
		}
		logx.InitWriter(os.Stderr, *logCfg)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env", "", "path to .env file (defaults to $ENV_FILE or ./.env)")
}
