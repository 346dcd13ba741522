package hashing

import (
	"bytes"
	"strings"
	"testing"
)

func TestBytesAndReaderAgree(t *testing.T) {
	data := []byte("invoice number 42, total 108.00")

	fromBytes := Bytes(data)
	fromReader, n, err := Reader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Reader counted %d bytes, want %d", n, len(data))
	}
	if fromBytes != fromReader {
		t.Errorf("fingerprint mismatch: bytes=%s reader=%s", fromBytes, fromReader)
	}
	if len(fromBytes) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(fromBytes))
	}
}

func TestIdenticalInputsIdenticalFingerprints(t *testing.T) {
	a := Bytes([]byte("same bytes"))
	b := Bytes([]byte("same bytes"))
	if a != b {
		t.Errorf("identical inputs produced different fingerprints: %s vs %s", a, b)
	}
	c := Bytes([]byte("same bytes "))
	if a == c {
		t.Error("distinct inputs produced equal fingerprints")
	}
}

func TestReaderLargeInputChunked(t *testing.T) {
	big := strings.Repeat("x", 1<<20)
	f1, _, err := Reader(strings.NewReader(big))
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	f2 := Bytes([]byte(big))
	if f1 != f2 {
		t.Errorf("chunked hash differs from one-shot hash")
	}
}
