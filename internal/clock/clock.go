// Package clock wraps timers and tickers behind an interface so the editor's
// debounce and push scheduling can be driven by virtual time in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run once after d. The returned Timer can be
	// reset to postpone the call or stopped to cancel it.
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (*System) Now() time.Time {
	return time.Now()
}

func (*System) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{time.AfterFunc(d, f)}
}

func (*System) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t systemTimer) Reset(d time.Duration) bool { return t.timer.Reset(d) }
func (t systemTimer) Stop() bool                 { return t.timer.Stop() }

type systemTicker struct {
	ticker *time.Ticker
}

func (t systemTicker) C() <-chan time.Time { return t.ticker.C }
func (t systemTicker) Stop()               { t.ticker.Stop() }
