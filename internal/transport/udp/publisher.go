// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	applog "trap/internal/log"
)

// HeaderSize is the number of bytes before the magnitudes in a packet.
const HeaderSize = 4 + 8 + 2

// SpectrumSource supplies the latest denoised spectrum. SpectrumInto copies
// it into dst and reports false when no spectrum is available yet.
type SpectrumSource interface {
	Bins() int
	SpectrumInto(dst []float64) bool
}

// UDPPublisher periodically fetches the latest spectrum, packs it into a
// defined binary format, and sends it over UDP using a Sender.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender   *Sender
	source   SpectrumSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum atomic.Uint32

	// Reused on every tick.
	magBuffer    []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 62.5ms, one
// analysis window at the default rates.
func NewUDPPublisher(interval time.Duration, sender *Sender, source SpectrumSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, errors.New("UDPPublisher: spectrum source cannot be nil")
	}
	bins := source.Bins()
	if bins < 1 || bins > MaxBins() {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit a packet", bins)
	}

	if interval <= 0 {
		interval = 62500 * time.Microsecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		magBuffer:    make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: bytes.NewBuffer(make([]byte, 0, HeaderSize+4*bins)),
	}, nil
}

// Start begins the periodic publishing process. Calling it while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals keep the goroutine off p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Denoised spectrum       |
+-----------------------------------------------------------------------------+
*/

// buildAndSendPacket runs on every tick. Ticks before the first spectrum
// send nothing.
func (p *UDPPublisher) buildAndSendPacket() {
	if !p.source.SpectrumInto(p.magBuffer) {
		return
	}
	seq := p.sequenceNum.Add(1)
	packet, err := EncodePacket(p.packetBuffer, seq, time.Now(), p.magBuffer, p.f32Buffer)
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", seq, len(packet))
	}
}

// Sequence returns the number of packets built so far.
func (p *UDPPublisher) Sequence() uint32 { return p.sequenceNum.Load() }

// Close stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)

// EncodePacket writes one packet into buf and returns its bytes, which alias
// buf. scratch must hold len(mags) values.
func EncodePacket(buf *bytes.Buffer, seq uint32, at time.Time, mags []float64, scratch []float32) ([]byte, error) {
	if len(mags) > math.MaxUint16 || len(scratch) < len(mags) {
		return nil, fmt.Errorf("udp: cannot pack %d magnitudes", len(mags))
	}
	f32 := scratch[:len(mags)]
	for i, v := range mags {
		f32[i] = float32(v)
	}

	buf.Reset()
	err := binary.Write(buf, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, at.UnixNano())
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(f32)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, f32)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	Magnitudes []float32
}

// DecodePacket parses a packet produced by EncodePacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("udp: packet of %d bytes is shorter than the header", len(b))
	}
	seq := binary.BigEndian.Uint32(b[0:4])
	ts := int64(binary.BigEndian.Uint64(b[4:12]))
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*n {
		return Packet{}, fmt.Errorf("udp: packet of %d bytes does not hold %d magnitudes", len(b), n)
	}
	mags := make([]float32, n)
	for i := range mags {
		off := HeaderSize + 4*i
		mags[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
	}
	return Packet{Sequence: seq, Timestamp: time.Unix(0, ts), Magnitudes: mags}, nil
}
