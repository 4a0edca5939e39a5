package recorder

import (
	"encoding/binary"
	"math"
	"testing"
)

func tone(samples int, amplitude int16) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestActivityMeterRMS(t *testing.T) {
	m := NewActivityMeter(2048)
	m.Write(tone(4096, 655))
	level := m.Sample()
	if math.Abs(level-0.02) > 0.001 {
		t.Fatalf("expected level near 0.02, got %f", level)
	}
	if m.Level() != level {
		t.Fatalf("expected Level to report last sample")
	}
	if got := m.Sample(); got != 0 {
		t.Fatalf("expected 0 with no fresh audio, got %f", got)
	}
}

func TestActivityMeterSilence(t *testing.T) {
	m := NewActivityMeter(512)
	m.Write(make([]byte, 1024))
	if got := m.Sample(); got != 0 {
		t.Fatalf("expected silent level 0, got %f", got)
	}
}

func TestActivityMeterOddWrites(t *testing.T) {
	m := NewActivityMeter(64)
	pcm := tone(32, 16384)
	m.Write(pcm[:3])
	m.Write(pcm[3:])
	level := m.Sample()
	if math.Abs(level-0.5) > 0.001 {
		t.Fatalf("expected level 0.5 across split writes, got %f", level)
	}
}
