package main

import (
	"github.com/tanpawarit/Chative-Loan-Advisor/cmd"
	_ "github.com/tanpawarit/Chative-Loan-Advisor/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
