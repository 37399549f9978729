package audio

import (
	"bytes"
	"errors"
	"testing"
)

func telephonyAggregator(t *testing.T, seconds int) *Aggregator {
	t.Helper()
	a, err := NewAggregator(TelephonyFormat(), seconds)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a
}

func TestAggregator_TelephonyThreshold(t *testing.T) {
	a := telephonyAggregator(t, 5)
	if a.Threshold() != 40000 {
		t.Fatalf("threshold = %d, want 40000", a.Threshold())
	}
}

func TestAggregator_UnderThresholdStopFlushesOnce(t *testing.T) {
	a := telephonyAggregator(t, 5)

	seg, err := a.Write(make([]byte, 39999))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if seg != nil {
		t.Fatalf("got a threshold segment at %d bytes, threshold is %d", 39999, a.Threshold())
	}

	seg, err = a.Flush()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if seg == nil {
		t.Fatal("expected a final flush segment")
	}
	if seg.RawBytes != 39999 {
		t.Errorf("flush segment carries %d bytes, want 39999", seg.RawBytes)
	}
	if !seg.Final {
		t.Error("flush segment should be marked final")
	}
	if a.State() != StateFlushed {
		t.Errorf("state = %v, want flushed", a.State())
	}

	if _, err := a.Flush(); !errors.Is(err, ErrFlushed) {
		t.Errorf("second flush err = %v, want ErrFlushed", err)
	}
	if _, err := a.Write([]byte{1}); !errors.Is(err, ErrFlushed) {
		t.Errorf("write after flush err = %v, want ErrFlushed", err)
	}
}

func TestAggregator_ThresholdCutsAndResets(t *testing.T) {
	a := telephonyAggregator(t, 5)

	seg, err := a.Write(make([]byte, 40000))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if seg == nil {
		t.Fatal("expected a segment at threshold")
	}
	if seg.RawBytes != 40000 || seg.Final {
		t.Errorf("segment = %d bytes final=%v, want 40000 non-final", seg.RawBytes, seg.Final)
	}
	if seg.Seq != 0 {
		t.Errorf("first segment seq = %d, want 0", seg.Seq)
	}
	if a.Buffered() != 0 {
		t.Errorf("buffer not reset, %d bytes left", a.Buffered())
	}
	if a.State() != StateStreaming {
		t.Errorf("state = %v, want streaming after a threshold cut", a.State())
	}

	// Next segment continues the sequence.
	seg, err = a.Write(make([]byte, 40001))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if seg == nil || seg.Seq != 1 || seg.RawBytes != 40001 {
		t.Errorf("second segment = %+v, want seq 1 with 40001 bytes", seg)
	}
}

func TestAggregator_StateMachine(t *testing.T) {
	a := telephonyAggregator(t, 5)
	if a.State() != StateIdle {
		t.Fatalf("fresh state = %v, want idle", a.State())
	}

	if _, err := a.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if a.State() != StateStreaming {
		t.Errorf("state = %v, want streaming", a.State())
	}

	// Empty frames are ignored and do not advance the state machine.
	b := telephonyAggregator(t, 5)
	if seg, err := b.Write(nil); err != nil || seg != nil {
		t.Errorf("empty write = %v, %v", seg, err)
	}
	if b.State() != StateIdle {
		t.Errorf("state after empty write = %v, want idle", b.State())
	}

	// A silent call flushes to no segment but still terminates.
	seg, err := b.Flush()
	if err != nil || seg != nil {
		t.Errorf("empty flush = %v, %v; want nil, nil", seg, err)
	}
	if b.State() != StateFlushed {
		t.Errorf("state = %v, want flushed", b.State())
	}
}

func TestAggregator_SegmentIsPlayableWAV(t *testing.T) {
	a := telephonyAggregator(t, 5)
	payload := bytes.Repeat([]byte{0x7f}, 40000)

	seg, err := a.Write(payload)
	if err != nil || seg == nil {
		t.Fatalf("write = %v, %v", seg, err)
	}

	f, data, err := DecodeWAV(seg.WAV)
	if err != nil {
		t.Fatalf("decode emitted segment: %v", err)
	}
	if f != TelephonyFormat() {
		t.Errorf("decoded format = %+v, want telephony format", f)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("decoded payload differs: %d bytes vs %d sent", len(data), len(payload))
	}
	if seg.ID == "" {
		t.Error("segment ID should be set")
	}
}
