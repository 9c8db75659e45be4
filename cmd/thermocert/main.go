// thermocert turns data-logger exports from thermal qualification runs into
// compliance results.
//
// Usage:
//
//	thermocert process [--config FILE] [--category C] [--json | --out DIR] FILE...
//	thermocert edit    --in RESULT.json --index N --sensor S (--value V | --clear)
//	thermocert serve   [--config FILE]
package main

import (
	"fmt"
	"log/slog"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// stdout carries command output, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
