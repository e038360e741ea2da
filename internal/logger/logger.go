package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[LogLevel]*color.Color{
	DEBUG: color.New(color.FgCyan),
	INFO:  color.New(color.FgGreen),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed),
	FATAL: color.New(color.FgRed, color.Bold),
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
}

// Logger writes colored lines to stdout and JSON lines to a dated file
// under logs/. The file writer is best-effort: if the directory cannot
// be created the logger still serves the terminal.
type Logger struct {
	logFile *os.File
}

func NewLogger() *Logger {
	l := &Logger{}

	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("logger: cannot create logs directory: %v", err)
		return l
	}
	name := fmt.Sprintf("logs/booking-%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("logger: cannot open log file: %v", err)
		return l
	}
	l.logFile = f
	return l
}

func (l *Logger) log(level LogLevel, category, message string) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelNames[level],
		Category:  category,
		Message:   message,
	}

	c := levelColors[level]
	fmt.Printf("%s %s %s %s\n",
		color.New(color.FgBlue).Sprint(entry.Timestamp[11:19]),
		c.Sprintf("%-5s", entry.Level),
		c.Sprintf("[%-8s]", entry.Category),
		entry.Message,
	)

	if l.logFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(b, '\n'))
		}
	}
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Helpers for the components that log most.

func (l *Logger) LogOrder(action, orderID, message string) {
	l.Info("ORDER", fmt.Sprintf("[%s] %s - %s", action, orderID, message))
}

func (l *Logger) LogPayment(action, correlationID, message string) {
	l.Info("PAYMENT", fmt.Sprintf("[%s] %s - %s", action, correlationID, message))
}

func (l *Logger) LogSweep(message string) {
	l.Info("SWEEP", message)
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.logFile.Close()
	}
}
