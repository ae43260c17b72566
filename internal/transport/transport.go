// SPDX-License-Identifier: MIT
package transport

import "errors"

// Transport defines a generic interface for sending detection events and
// other processed data. Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every Send out to several transports. A failing transport
// does not stop the others; their errors are joined.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Send(any) error { return nil }
func (Nop) Close() error   { return nil }

// Ensure implementations satisfy the interface at compile time.
var (
	_ Transport = Multi(nil)
	_ Transport = Nop{}
)
