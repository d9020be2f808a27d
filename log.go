package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// setupLog routes log output: warnings and errors go to stderr by default,
// and everything from debug up is appended to the file named by
// OUTLOUD_LOGFILE when that variable is set.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	log.SetReportTimestamp(false)

	path := os.Getenv("OUTLOUD_LOGFILE")
	if path == "" {
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.RFC3339)
	return f.Close, nil
}
