package transport

import "github.com/moffa90/go-arimu/protocol"

// Logger is an optional logging interface shared by every package in this
// module. This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// Handler receives every decoded payload, on the reader goroutine.
type Handler func(payload []byte)

// Subscriber receives unsolicited replies for one command, on the reader
// goroutine. Implementations should return quickly.
type Subscriber func(reply *protocol.Reply)

func logDebug(l Logger, msg string, kv ...interface{}) {
	if l != nil {
		l.Debug(msg, kv...)
	}
}

func logError(l Logger, msg string, kv ...interface{}) {
	if l != nil {
		l.Error(msg, kv...)
	}
}
