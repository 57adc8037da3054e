package loadtest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/sift/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends log output to stdout and to logFile.
// An empty logFile gets a timestamped name.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "load_reports_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Sift Load Tool
==============

Submits concurrent reports to a running sift instance, then checks that
every reported user shows up in GET /blocklist.

Usage:
  go run ./cmd/load-reports [options]

Options:
  -url string        Base URL of the service (default "http://localhost:8000")
  -key string        x-api-key for POST /report (default $API_SECRET)
  -users int         Distinct users to report (default 1000)
  -repeat int        Reports per user (default 3)
  -workers int       Concurrent workers (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 30s)
  -output string     Write the submitted reports to this JSON file
  -log string        Log file (default: load_reports_TIMESTAMP.log)
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  API_SECRET=dev go run ./cmd/load-reports -users 5000 -repeat 2
  go run ./cmd/load-reports -url http://localhost:8080 -key dev -workers 32
`)
}
