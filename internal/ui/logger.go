// Package ui provides terminal output helpers for the solar-vector-store
// command line.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// Log formats accepted by SetFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// InitLogger initializes the charm logger with default settings.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SetFormat switches the logger between human readable text and JSON
// lines. JSON output always carries timestamps.
func SetFormat(format string) error {
	switch format {
	case FormatText, "":
		log.SetFormatter(log.TextFormatter)
	case FormatJSON:
		log.SetFormatter(log.JSONFormatter)
		log.SetReportTimestamp(true)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	return nil
}
