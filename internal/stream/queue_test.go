package stream

import (
	"errors"
	"testing"
	"time"
)

func TestCommandQueue_fifo(t *testing.T) {
	q := newCommandQueue(0)
	for _, s := range []string{"a", "b", "c"} {
		if _, err := q.push(s); err != nil {
			t.Fatalf("push %q: %v", s, err)
		}
	}
	if d := q.depth(); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}
	for _, want := range []string{"a", "b", "c"} {
		if got := q.take(); got.stop || got.text != want {
			t.Errorf("take = %+v, want %q", got, want)
		}
	}
}

func TestCommandQueue_take_blocks_until_push(t *testing.T) {
	q := newCommandQueue(0)
	got := make(chan command, 1)
	go func() { got <- q.take() }()

	select {
	case c := <-got:
		t.Fatalf("take returned early: %+v", c)
	case <-time.After(20 * time.Millisecond):
	}

	q.push("late")
	select {
	case c := <-got:
		if c.text != "late" {
			t.Errorf("take = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("take did not wake up")
	}
}

func TestCommandQueue_close(t *testing.T) {
	q := newCommandQueue(0)
	q.push("a")
	q.close()
	q.close()

	if _, err := q.push("b"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("push after close: %v, want ErrSessionClosed", err)
	}
	if c := q.take(); c.text != "a" {
		t.Errorf("first take = %+v, want a", c)
	}
	if c := q.take(); !c.stop {
		t.Errorf("second take = %+v, want stop sentinel", c)
	}
}

func TestCommandQueue_bounded(t *testing.T) {
	q := newCommandQueue(2)
	q.push("a")
	q.push("b")
	if _, err := q.push("c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("push over bound: %v, want ErrQueueFull", err)
	}
	// The stop sentinel is never rejected.
	q.close()
	if n := q.drain(); n != 2 {
		t.Errorf("drain = %d, want 2", n)
	}
	if d := q.depth(); d != 0 {
		t.Errorf("depth after drain = %d", d)
	}
}
