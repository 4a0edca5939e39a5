package recorder

import (
	"encoding/binary"
	"math"
)

// ActivityMeter estimates speech presence as the RMS energy of the most
// recent window of samples, normalized to [-1, 1]. It is advisory only and
// owned by a single goroutine.
type ActivityMeter struct {
	ring  []float64
	pos   int
	fresh int
	carry []byte
	odd   bool
	level float64
}

func NewActivityMeter(window int) *ActivityMeter {
	if window <= 0 {
		window = 2048
	}
	return &ActivityMeter{ring: make([]float64, window), carry: make([]byte, 1)}
}

// Write feeds 16-bit little-endian PCM. A trailing odd byte is kept for
// the next call.
func (m *ActivityMeter) Write(pcm []byte) {
	if m.odd && len(pcm) > 0 {
		m.push(int16(binary.LittleEndian.Uint16([]byte{m.carry[0], pcm[0]})))
		pcm = pcm[1:]
		m.odd = false
	}
	for len(pcm) >= 2 {
		m.push(int16(binary.LittleEndian.Uint16(pcm)))
		pcm = pcm[2:]
	}
	if len(pcm) == 1 {
		m.carry[0] = pcm[0]
		m.odd = true
	}
}

func (m *ActivityMeter) push(sample int16) {
	m.ring[m.pos] = float64(sample) / 32768
	m.pos = (m.pos + 1) % len(m.ring)
	if m.fresh < len(m.ring) {
		m.fresh++
	}
}

// Sample returns the RMS of samples written since the previous Sample,
// capped at the window size. It is 0 when nothing new arrived.
func (m *ActivityMeter) Sample() float64 {
	n := m.fresh
	m.fresh = 0
	if n == 0 {
		m.level = 0
		return 0
	}
	var sum float64
	for i := 1; i <= n; i++ {
		v := m.ring[(m.pos-i+len(m.ring))%len(m.ring)]
		sum += v * v
	}
	m.level = math.Sqrt(sum / float64(n))
	return m.level
}

// Level is the value returned by the last Sample.
func (m *ActivityMeter) Level() float64 {
	return m.level
}
