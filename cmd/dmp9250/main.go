package main

import (
	"os"

	"github.com/d2r2/go-logger"

	"github.com/westphae/dmp9250/internal/cmd"
)

func main() {
	defer logger.FinalizeLogger()
	if err := cmd.Execute(); err != nil {
		logger.FinalizeLogger()
		os.Exit(1)
	}
}
