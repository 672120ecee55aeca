package iox

import (
	"errors"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	calls := 0
	DiscardErr(func() error {
		calls++
		return errors.New("sync failed")
	})
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}
