package journald

import (
	"testing"
)

func TestWithNewBufferCap(t *testing.T) {
	p := NewEncoderPool(nil)
	if p.NewBufferCap != defaultNewBufferCap {
		t.Fatalf("expected NewBufferCap default to be: %d, got: %d", defaultNewBufferCap, p.NewBufferCap)
	}

	cap := 16 << 10
	p = NewEncoderPool(&EncoderOptions{NewBufferCap: cap})
	if p.NewBufferCap != cap {
		t.Fatalf("expected NewBufferCap to be: %d, got: %d`", cap, p.NewBufferCap)
	}

	// coerced up to the minimum
	p = NewEncoderPool(&EncoderOptions{NewBufferCap: 1})
	if p.NewBufferCap != minBufferCap {
		t.Fatalf("expected NewBufferCap to be coerced to: %d, got: %d", minBufferCap, p.NewBufferCap)
	}
}

func TestWithMaxBufferCap(t *testing.T) {
	p := NewEncoderPool(nil)
	if p.MaxBufferCap != defaultMaxBufferCap {
		t.Fatalf("expected MaxBufferCap default to be: %d, got: %d", defaultMaxBufferCap, p.MaxBufferCap)
	}

	cap := 32 << 10
	p = NewEncoderPool(&EncoderOptions{MaxBufferCap: cap})
	if p.MaxBufferCap != cap {
		t.Fatalf("expected MaxBufferCap to be: %d, got: %d`", cap, p.MaxBufferCap)
	}

	// never below NewBufferCap
	p = NewEncoderPool(&EncoderOptions{NewBufferCap: 16 << 10, MaxBufferCap: 1})
	if p.MaxBufferCap != 16<<10 {
		t.Fatalf("expected MaxBufferCap to be coerced to: %d, got: %d", 16<<10, p.MaxBufferCap)
	}
}
