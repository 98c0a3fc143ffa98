package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fired := 0
	fake.AfterFunc(time.Second, func() { fired++ })

	fake.Advance(500 * time.Millisecond)
	if fired != 0 {
		t.Fatal("timer fired before deadline")
	}
	fake.Advance(500 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 firing, got %d", fired)
	}
	fake.Advance(10 * time.Second)
	if fired != 1 {
		t.Fatalf("timer fired again after completion: %d", fired)
	}
}

func TestFakeTimerResetPostpones(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fired := 0
	timer := fake.AfterFunc(time.Second, func() { fired++ })

	fake.Advance(900 * time.Millisecond)
	timer.Reset(time.Second)
	fake.Advance(900 * time.Millisecond)
	if fired != 0 {
		t.Fatal("reset did not postpone the deadline")
	}
	fake.Advance(100 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 firing, got %d", fired)
	}
}

func TestFakeTimerStopCancels(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	fired := 0
	timer := fake.AfterFunc(time.Second, func() { fired++ })

	if !timer.Stop() {
		t.Fatal("Stop on an active timer should report true")
	}
	fake.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("Stop on an inactive timer should report false")
	}
}

func TestFakeTickerDelivers(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Minute)

	fake.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("expected a tick after one interval")
	}

	ticker.Stop()
	fake.Advance(5 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}
