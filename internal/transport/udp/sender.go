// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "trap/internal/log"
)

// MaxPayload is the largest UDP payload over IPv4.
const MaxPayload = 65507

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("udp: sender is closed")
	// ErrTooLarge is returned for a packet that does not fit one datagram.
	ErrTooLarge = errors.New("udp: packet exceeds one datagram")
)

// MaxBins returns the largest spectrum a single packet can carry.
func MaxBins() int { return (MaxPayload - HeaderSize) / 4 }

// Stats counts what a Sender has put on the wire.
type Stats struct {
	Packets uint64
	Bytes   uint64
	Errors  uint64
}

// Sender writes spectrum packets to one monitoring host. It is safe for
// concurrent use.
type Sender struct {
	target *net.UDPAddr

	mu     sync.Mutex
	conn   *net.UDPConn
	stats  Stats
	closed bool
}

// NewSender dials target, given as "host:port".
func NewSender(target string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve spectrum target %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial spectrum target %q: %w", target, err)
	}
	applog.Infof("Sender: Streaming spectra to %s", conn.RemoteAddr())
	return &Sender{target: addr, conn: conn}, nil
}

// Target returns the resolved destination.
func (s *Sender) Target() *net.UDPAddr { return s.target }

// Send writes packet as one datagram.
func (s *Sender) Send(packet []byte) error {
	if len(packet) > MaxPayload {
		return fmt.Errorf("%d bytes: %w", len(packet), ErrTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.conn.Write(packet)
	if err != nil {
		s.stats.Errors++
		// Warn once; a host that is not listening fails every write.
		if s.stats.Errors == 1 {
			applog.Warnf("Sender: Failed to send spectrum: %v", err)
		}
		return fmt.Errorf("failed to send spectrum: %w", err)
	}
	s.stats.Packets++
	s.stats.Bytes += uint64(n)
	return nil
}

// Stats returns the counters so far.
func (s *Sender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the connection. Further calls do nothing.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	applog.Debugf("Sender: Closing %s after %d packets, %d bytes, %d errors",
		s.target, s.stats.Packets, s.stats.Bytes, s.stats.Errors)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close spectrum sender: %w", err)
	}
	return nil
}
