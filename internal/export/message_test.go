package export

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestMessageBufferFlushesWhenSetDoesNotFit(t *testing.T) {
	var flushed [][]byte
	mb := NewMessageBuffer(MessageHeaderLen+SetHeaderLen+8, 7, func(p []byte) error {
		flushed = append(flushed, append([]byte(nil), p...))
		return nil
	})
	mb.Clock = func() time.Time { return time.Unix(1000, 0) }

	set := make([]byte, 8)
	if err := mb.AppendSet(set); err != nil {
		t.Fatalf("first AppendSet: %v", err)
	}
	if len(flushed) != 0 {
		t.Fatal("first set should fit without a flush")
	}

	if err := mb.AppendSet(set); err != nil {
		t.Fatalf("second AppendSet: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("second set must trigger a flush of the first, got %d flushes", len(flushed))
	}

	if err := mb.Flush(); err != nil {
		t.Fatalf("final Flush: %v", err)
	}
	if len(flushed) != 2 {
		t.Fatalf("expected 2 total flushed messages, got %d", len(flushed))
	}

	msg := flushed[0]
	if binary.BigEndian.Uint16(msg[0:2]) != IPFIXVersion {
		t.Fatalf("unexpected version field: %x", msg[0:2])
	}
	if binary.BigEndian.Uint16(msg[2:4]) != uint16(len(msg)) {
		t.Fatalf("length field %d does not match actual message length %d", binary.BigEndian.Uint16(msg[2:4]), len(msg))
	}
	if binary.BigEndian.Uint32(msg[12:16]) != 7 {
		t.Fatalf("observation domain mismatch: %d", binary.BigEndian.Uint32(msg[12:16]))
	}
}

func TestMessageBufferSequenceIncrementsAndResets(t *testing.T) {
	var seqs []uint32
	mb := NewMessageBuffer(DefaultMTU, 0, func(p []byte) error {
		seqs = append(seqs, binary.BigEndian.Uint32(p[8:12]))
		return nil
	})

	_ = mb.AppendSet(make([]byte, 4))
	_ = mb.Flush()
	_ = mb.AppendSet(make([]byte, 4))
	_ = mb.Flush()

	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 1 {
		t.Fatalf("expected sequence numbers [0 1], got %v", seqs)
	}

	mb.ResetSequence()
	_ = mb.AppendSet(make([]byte, 4))
	_ = mb.Flush()
	if seqs[2] != 0 {
		t.Fatalf("expected sequence to reset to 0 after ResetSequence, got %d", seqs[2])
	}
}

func TestMessageBufferRejectsOversizedSet(t *testing.T) {
	mb := NewMessageBuffer(MessageHeaderLen+8, 0, func([]byte) error { return nil })
	err := mb.AppendSet(make([]byte, 9))
	if err != ErrRecordExceedsMTU {
		t.Fatalf("expected ErrRecordExceedsMTU, got %v", err)
	}
}

func TestMessageBufferFlushIsNoOpWhenEmpty(t *testing.T) {
	calls := 0
	mb := NewMessageBuffer(DefaultMTU, 0, func([]byte) error { calls++; return nil })
	if err := mb.Flush(); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatal("Flush on an empty buffer must not call onFlush")
	}
}
