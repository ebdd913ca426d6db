// Package autoload configures the global logger from LOG_* variables when
// imported for its side effect.
package autoload

import (
	"os"

	configx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/config"
	logx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.InitWriter(os.Stderr)
		return
	}
	logx.InitWriter(os.Stderr, *conf)
}
