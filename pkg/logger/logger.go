// Package logger provides the run-scoped file logger shared by all
// components. One exploration session writes one log file; with debug
// enabled, messages are echoed to stderr.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	fileLog *log.Logger
	echoLog *log.Logger
	logFile *os.File
	debugOn bool
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	fileLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

// SetDebug enables debug-level messages and stderr echo.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	debugOn = on
	if on {
		echoLog = log.New(os.Stderr, "", log.Ltime)
	} else {
		echoLog = nil
	}
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		fileLog = nil
	}
}

func emit(level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if level == "DEBUG" && !debugOn {
		return
	}
	line := "[" + level + "] " + format
	if fileLog != nil {
		fileLog.Printf(line, v...)
	}
	if echoLog != nil {
		echoLog.Printf(line, v...)
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	emit("INFO", format, v...)
}

// Debug logs a debug message. Dropped unless debug is enabled.
func Debug(format string, v ...interface{}) {
	emit("DEBUG", format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	emit("WARN", format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	emit("ERROR", format, v...)
}

// GetWriter returns the underlying writer for components that need raw
// stream access.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
