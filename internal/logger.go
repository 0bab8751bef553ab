package internal

import (
	"fmt"
	"log"
	"time"

	"tutorpay/entity"
	"tutorpay/services"
)

// Logger writes leveled, module-prefixed messages to standard output and,
// when a database is attached, mirrors them to the payment log collection.
type Logger struct {
	module string
	debug  bool
	db     services.Database
}

func NewLogger(module string, debug bool, db services.Database) *Logger {
	return &Logger{
		module: module,
		debug:  debug,
		db:     db,
	}
}

func (l *Logger) Debug(message string) {
	if !l.debug {
		return
	}
	l.write("DEBUG", message, nil)
}

func (l *Logger) Info(message string) {
	l.write("INFO", message, nil)
}

func (l *Logger) Warn(message string) {
	l.write("WARN", message, nil)
}

func (l *Logger) Error(message string, err error) {
	l.write("ERROR", message, err)
}

func (l *Logger) write(level, message string, err error) {
	if err != nil {
		log.Printf("%s: %s: %s; %v", level, l.module, message, err)
	} else {
		log.Printf("%s: %s: %s", level, l.module, message)
	}

	if l.db == nil {
		return
	}
	record := &entity.LogMessage{
		Time:   time.Now(),
		Level:  level,
		Module: l.module,
		Text:   message,
	}
	if err != nil {
		record.ErrorText = err.Error()
	}
	if dbErr := l.db.WriteLogMessage(record); dbErr != nil {
		log.Printf("ERROR: %s: write log record: %v", l.module, dbErr)
	}
}

// ensure Logger satisfies the service interface
var _ services.LogHandler = (*Logger)(nil)

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
