package handler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TimerHandle は CallLater / CallEvery で登録したタイマーの識別子
type TimerHandle uint64

// Scheduler は遅延実行と周期実行を提供する
type Scheduler interface {
	CallLater(d time.Duration, fn func()) TimerHandle
	CallEvery(d time.Duration, fn func()) TimerHandle
	Cancel(h TimerHandle)
}

// ClockScheduler は clock.Clock によるスケジューラ。
// コールバックは post を通してイベントループで実行される。
type ClockScheduler struct {
	clock clock.Clock
	post  func(func()) bool

	mu     sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]func()
}

// NewClockScheduler は post に渡された関数の中でコールバックを実行するスケジューラを作る。
// post が nil の場合はタイマーのゴルーチンで直接実行する。
func NewClockScheduler(c clock.Clock, post func(func()) bool) *ClockScheduler {
	if c == nil {
		c = clock.New()
	}
	if post == nil {
		post = func(fn func()) bool {
			fn()
			return true
		}
	}
	return &ClockScheduler{
		clock:  c,
		post:   post,
		timers: make(map[TimerHandle]func()),
	}
}

func (s *ClockScheduler) register(stop func()) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.timers[s.next] = stop
	return s.next
}

func (s *ClockScheduler) active(h TimerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[h]
	return ok
}

func (s *ClockScheduler) CallLater(d time.Duration, fn func()) TimerHandle {
	var h TimerHandle
	ready := make(chan struct{})
	timer := s.clock.AfterFunc(d, func() {
		<-ready
		if !s.active(h) {
			return
		}
		s.mu.Lock()
		delete(s.timers, h)
		s.mu.Unlock()
		s.post(fn)
	})
	h = s.register(func() { timer.Stop() })
	close(ready)
	return h
}

func (s *ClockScheduler) CallEvery(d time.Duration, fn func()) TimerHandle {
	ticker := s.clock.Ticker(d)
	done := make(chan struct{})
	h := s.register(func() {
		ticker.Stop()
		close(done)
	})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !s.active(h) {
					return
				}
				s.post(fn)
			}
		}
	}()
	return h
}

func (s *ClockScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	stop, ok := s.timers[h]
	delete(s.timers, h)
	s.mu.Unlock()
	if ok {
		stop()
	}
}

// CancelAll は登録中の全タイマーを止める
func (s *ClockScheduler) CancelAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[TimerHandle]func())
	s.mu.Unlock()
	for _, stop := range timers {
		stop()
	}
}
