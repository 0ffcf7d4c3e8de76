package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRingBufferBasicWrite(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte("hello"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abcdef"))
	rb.Write([]byte("ghij")) // pushes out "ab"
	if got := rb.Bytes(); !bytes.Equal(got, []byte("cdefghij")) {
		t.Errorf("Bytes() after wrap = %q, want %q", got, "cdefghij")
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("0123456789"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("6789")) {
		t.Errorf("Bytes() = %q, want last 4 bytes %q", got, "6789")
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(64)
	rb.Write([]byte("crash context\n"))

	path := filepath.Join(t.TempDir(), "dump.log")
	if err := rb.DumpToFile(path); err != nil {
		t.Fatalf("DumpToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "crash context\n" {
		t.Errorf("dump = %q", data)
	}
}
