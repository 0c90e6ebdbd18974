package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

func (l LogLevel) rank() int32 {
	switch l {
	case LogLevelDebug:
		return 0
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	}
	return 1
}

// ParseLogLevel maps "debug", "info", "warn" or "error" (any case) to a
// LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToUpper(strings.TrimSpace(s))); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return level, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Level     LogLevel               `json:"level"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Username  string                 `json:"username,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// LogBuffer stores recent log entries in memory for the /logs endpoint
type LogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

// NewLogBuffer creates a buffer holding at most maxSize entries.
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{entries: make([]LogEntry, 0, maxSize), maxSize: maxSize}
}

var globalLogBuffer = NewLogBuffer(200)

var (
	minLevel atomic.Int32 // rank of the lowest level written

	outputMu sync.Mutex
	logFile  *os.File
)

func init() {
	minLevel.Store(LogLevelInfo.rank())
}

// AddEntry adds a log entry to the buffer
func (lb *LogBuffer) AddEntry(entry LogEntry) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	lb.entries = append(lb.entries, entry)

	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetEntries returns a copy of all log entries (newest first)
func (lb *LogBuffer) GetEntries() []LogEntry {
	return lb.GetRecentEntries(lb.maxSize)
}

// GetRecentEntries returns the most recent N log entries (newest first)
func (lb *LogBuffer) GetRecentEntries(count int) []LogEntry {
	lb.mutex.RLock()
	defer lb.mutex.RUnlock()

	if count > len(lb.entries) {
		count = len(lb.entries)
	}
	if count < 0 {
		count = 0
	}

	startIdx := len(lb.entries) - count
	entriesCopy := make([]LogEntry, count)
	for i, j := 0, len(lb.entries)-1; j >= startIdx; i, j = i+1, j-1 {
		entriesCopy[i] = lb.entries[j]
	}

	return entriesCopy
}

// Logger provides structured logging functionality
type Logger struct {
	component string
	username  string
	sessionID string
}

// NewLogger creates a new logger instance for a specific component
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
	}
}

// WithUser returns a copy of the logger tagged with username
func (l *Logger) WithUser(username string) *Logger {
	c := *l
	c.username = username
	return &c
}

// WithSession returns a copy of the logger tagged with a session ID
func (l *Logger) WithSession(sessionID string) *Logger {
	c := *l
	c.sessionID = sessionID
	return &c
}

// Debug logs a debug message
func (l *Logger) Debug(message string, data ...map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, data...)
}

// Info logs an info message
func (l *Logger) Info(message string, data ...map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, data...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, data ...map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, data...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, data ...map[string]interface{}) {
	l.log(LogLevelError, message, err, data...)
}

func (l *Logger) log(level LogLevel, message string, err error, data ...map[string]interface{}) {
	if level.rank() < minLevel.Load() {
		return
	}

	entry := LogEntry{
		Level:     level,
		Timestamp: time.Now(),
		Component: l.component,
		Username:  l.username,
		SessionID: l.sessionID,
		Message:   message,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if len(data) > 0 {
		entry.Data = make(map[string]interface{})
		for _, d := range data {
			for k, v := range d {
				entry.Data[k] = v
			}
		}
	}

	globalLogBuffer.AddEntry(entry)

	jsonData, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		log.Printf("[%s] %s: %s", level, l.component, message)
		return
	}

	outputMu.Lock()
	defer outputMu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, "%s\n", jsonData)
	} else {
		log.Printf("%s", jsonData)
	}
}

// Component loggers
var (
	ServerLogger    = NewLogger("Server")
	SessionLogger   = NewLogger("Session")
	StoreLogger     = NewLogger("Store")
	TransportLogger = NewLogger("Transport")
	JanitorLogger   = NewLogger("Janitor")
)

// SetLogLevel sets the minimum level written to the log and the buffer
func SetLogLevel(level LogLevel) {
	minLevel.Store(level.rank())
}

// LogToFile sends structured logs to filename instead of stderr. A file
// larger than 10MB is rotated to filename.old first.
func LogToFile(filename string) error {
	if stat, err := os.Stat(filename); err == nil {
		if stat.Size() > 10*1024*1024 {
			rotatedName := filename + ".old"
			_ = os.Remove(rotatedName)
			_ = os.Rename(filename, rotatedName)
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	outputMu.Lock()
	old := logFile
	logFile = file
	outputMu.Unlock()
	if old != nil {
		old.Close()
	}

	log.SetOutput(file)
	return nil
}

// GetLogBuffer returns the global log buffer
func GetLogBuffer() *LogBuffer {
	return globalLogBuffer
}
