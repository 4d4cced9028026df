// File: core/buffer/buffer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

import (
	"bytes"
	"strings"
	"testing"
)

func TestAppendRetrieveRoundTrip(t *testing.T) {
	b := New()
	parts := []string{"hello", " ", "world", strings.Repeat("x", 300)}
	total := 0
	for _, p := range parts {
		b.Append([]byte(p))
		total += len(p)
	}
	if got := b.ReadableBytes(); got != total {
		t.Fatalf("readable = %d, want %d", got, total)
	}
	if got := b.RetrieveAsString(total); got != strings.Join(parts, "") {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if b.ReadableBytes() != 0 {
		t.Fatalf("readable after drain = %d", b.ReadableBytes())
	}
	// Drained buffer snaps back to the prepend boundary.
	if b.PrependableBytes() != CheapPrepend {
		t.Fatalf("prependable after drain = %d, want %d", b.PrependableBytes(), CheapPrepend)
	}
}

func TestGrowth(t *testing.T) {
	b := New()
	b.Append(bytes.Repeat([]byte{'a'}, 400))
	b.Append(bytes.Repeat([]byte{'b'}, 1000))
	if got := b.ReadableBytes(); got != 1400 {
		t.Fatalf("readable = %d, want 1400", got)
	}
	got := b.RetrieveAllAsString()
	if got[:400] != strings.Repeat("a", 400) || got[400:] != strings.Repeat("b", 1000) {
		t.Fatalf("content corrupted after growth")
	}
}

func TestCompactInsteadOfGrow(t *testing.T) {
	b := New()
	b.Append(bytes.Repeat([]byte{'a'}, 800))
	b.Retrieve(700)
	capBefore := b.Cap()
	b.Append(bytes.Repeat([]byte{'b'}, 400))
	if b.Cap() != capBefore {
		t.Fatalf("cap grew from %d to %d; expected compaction", capBefore, b.Cap())
	}
	got := b.RetrieveAllAsString()
	want := strings.Repeat("a", 100) + strings.Repeat("b", 400)
	if got != want {
		t.Fatalf("content corrupted after compaction")
	}
}

func TestIntHelpers(t *testing.T) {
	b := New()
	b.AppendInt8(0x12)
	b.AppendInt16(0x3456)
	b.AppendInt32(0x789abcde)
	b.AppendInt64(0x0123456789abcdef)

	// Big-endian on the wire.
	want := []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde,
		0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	if !bytes.Equal(b.Peek(), want) {
		t.Fatalf("wire bytes = %x, want %x", b.Peek(), want)
	}

	if v := b.ReadInt8(); v != 0x12 {
		t.Fatalf("ReadInt8 = %#x", v)
	}
	if v := b.ReadInt16(); v != 0x3456 {
		t.Fatalf("ReadInt16 = %#x", v)
	}
	if v := b.ReadInt32(); v != 0x789abcde {
		t.Fatalf("ReadInt32 = %#x", v)
	}
	if v := b.ReadInt64(); v != 0x0123456789abcdef {
		t.Fatalf("ReadInt64 = %#x", v)
	}
}

func TestPrependInt32RoundTrip(t *testing.T) {
	b := New()
	b.Append([]byte("payload"))
	b.PrependInt32(7)
	if got := b.PeekInt32(); got != 7 {
		t.Fatalf("PeekInt32 = %d, want 7", got)
	}
	if got := b.ReadInt32(); got != 7 {
		t.Fatalf("ReadInt32 = %d, want 7", got)
	}
	if got := b.RetrieveAllAsString(); got != "payload" {
		t.Fatalf("payload after prepend = %q", got)
	}
}

func TestFindCRLF(t *testing.T) {
	b := New()
	b.AppendString("GET / HTTP/1.1\r\nHost: x\r\n")
	if got := b.FindCRLF(); got != 14 {
		t.Fatalf("FindCRLF = %d, want 14", got)
	}
	b.RetrieveUntil(14 + 2)
	if got := b.FindCRLF(); got != 7 {
		t.Fatalf("FindCRLF after retrieve = %d, want 7", got)
	}
	b.RetrieveAll()
	if got := b.FindCRLF(); got != -1 {
		t.Fatalf("FindCRLF on empty = %d, want -1", got)
	}
}
