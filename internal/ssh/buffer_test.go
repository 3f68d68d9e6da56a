package ssh

import (
	"strings"
	"sync"
	"testing"
)

func TestCaptureBuffer_KeepsUpToLimit(t *testing.T) {
	b := newCaptureBuffer(8)
	for _, chunk := range []string{"abc", "defgh", "ijk"} {
		n, err := b.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	got := string(b.Bytes())
	if !strings.HasPrefix(got, "abcdefgh\n") {
		t.Errorf("Bytes() = %q, want abcdefgh prefix", got)
	}
	if !strings.Contains(got, "3 bytes dropped") {
		t.Errorf("Bytes() = %q, want truncation note", got)
	}
}

func TestCaptureBuffer_EmptyIsNil(t *testing.T) {
	if b := newCaptureBuffer(8).Bytes(); b != nil {
		t.Errorf("Bytes() = %q, want nil", b)
	}
}

func TestCaptureBuffer_ConcurrentReadWrite(t *testing.T) {
	b := newCaptureBuffer(maxCapture)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Write([]byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Bytes()
			}
		}()
	}
	wg.Wait()
	if got := len(b.Bytes()); got != 400 {
		t.Errorf("len = %d, want 400", got)
	}
}
