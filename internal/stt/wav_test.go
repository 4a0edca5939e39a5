package stt

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestEncodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 3200)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(1000)))
	neg := int16(-1000)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(neg))

	out, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("RIFF")) || string(out[8:12]) != "WAVE" {
		t.Fatalf("expected RIFF/WAVE header, got %q", out[:12])
	}

	dec := wav.NewDecoder(bytes.NewReader(out))
	if !dec.IsValidFile() {
		t.Fatal("decoder rejected encoded wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 16000 || buf.Format.NumChannels != 1 {
		t.Fatalf("unexpected format %+v", buf.Format)
	}
	if len(buf.Data) != 1600 {
		t.Fatalf("expected 1600 samples, got %d", len(buf.Data))
	}
	if buf.Data[0] != 1000 || buf.Data[1] != -1000 {
		t.Fatalf("unexpected samples %v", buf.Data[:2])
	}
}

func TestEncodeWAVRejectsOddPayload(t *testing.T) {
	if _, err := EncodeWAV([]byte{1, 2, 3}, 16000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestPCMDuration(t *testing.T) {
	if got := PCMDuration(32000, 16000, 1); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := PCMBytes(15*time.Second, 16000, 1); got != 480000 {
		t.Fatalf("expected 480000 bytes, got %d", got)
	}
	if got := PCMDuration(PCMBytes(250*time.Millisecond, 48000, 2), 48000, 2); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
}
