package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	short := f.After(time.Second)
	long := f.After(time.Minute)
	assert.Equal(t, 2, f.Waiters())

	f.Advance(500 * time.Millisecond)
	select {
	case <-short:
		t.Fatal("fired early")
	default:
	}

	f.Advance(time.Second)
	select {
	case got := <-short:
		assert.Equal(t, start.Add(1500*time.Millisecond), got)
	default:
		t.Fatal("short timer did not fire")
	}
	assert.Equal(t, 1, f.Waiters())

	f.Advance(time.Hour)
	<-long
	assert.Equal(t, 0, f.Waiters())
	assert.Equal(t, start.Add(time.Hour+1500*time.Millisecond), f.Now())
}

func TestFake_ZeroDurationFiresImmediately(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	select {
	case <-f.After(0):
	default:
		t.Fatal("zero timer should fire immediately")
	}
}
