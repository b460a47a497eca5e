package proxy

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// InstanceLogger tags every log line emitted by one Proxy with a short
// instance ID and its listen port, useful when a test harness runs several
// proxy instances side by side. Ported from the teacher's
// proxy/instance_logger.go, adapted to hand back a Sink instead of a bare
// *slog.Logger so it plugs directly into Config.Sink.
type InstanceLogger struct {
	InstanceID   string
	InstanceName string
	Port         string
	LogFilePath  string
	sink         Sink
}

// NewInstanceLogger creates an InstanceLogger whose Sink carries instance
// identification.
func NewInstanceLogger(addr, instanceName string) *InstanceLogger {
	return NewInstanceLoggerWithFile(addr, instanceName, "")
}

// NewInstanceLoggerWithFile creates an InstanceLogger whose Sink carries
// instance identification and optional file output.
func NewInstanceLoggerWithFile(addr, instanceName, logFilePath string) *InstanceLogger {
	port := addr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		port = addr[idx+1:]
	}

	if instanceName == "" {
		instanceName = fmt.Sprintf("proxy-%s", port)
	}

	il := &InstanceLogger{
		InstanceID:   uuid.NewV4().String()[:8],
		InstanceName: instanceName,
		Port:         port,
		LogFilePath:  logFilePath,
	}

	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			slog.Error("failed to open log file", "file", logFilePath, "error", err)
		} else {
			il.sink = NewSlogSink(slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{})).With(
				"instance_id", il.InstanceID,
				"instance_name", il.InstanceName,
				"port", il.Port,
			))
			return il
		}
	}

	il.sink = NewSlogSink(slog.Default().With(
		"instance_id", il.InstanceID,
		"instance_name", il.InstanceName,
		"port", il.Port,
	))

	return il
}

// Sink returns the underlying Sink, ready to assign to Config.Sink.
func (il *InstanceLogger) Sink() Sink {
	return il.sink
}
