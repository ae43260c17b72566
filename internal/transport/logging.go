// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"

	applog "trap/internal/log"
)

// Notable is implemented by data that deserves more than a debug line, such
// as a positive detection.
type Notable interface {
	Notable() bool
}

// LoggingTransport implements the Transport interface by logging data.
// Notable data is logged at info level, everything else at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	msg := fmt.Sprint(data)
	if n, ok := data.(Notable); ok && n.Notable() {
		applog.Infof("%s", msg)
		return nil
	}
	applog.Debugf("%s", msg)
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
