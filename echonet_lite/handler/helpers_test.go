package handler

import (
	"echonet-node/echonet_lite"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	selfID = "192.168.0.10"
	peerID = "192.168.0.20"
)

type sentMessage struct {
	To  string
	Msg *echonet_lite.ECHONETLiteMessage
}

// fakeSender は送信されたメッセージを記録する
type fakeSender struct {
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(nodeID string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	msg, err := echonet_lite.ParseECHONETLiteMessage(data)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{To: nodeID, Msg: msg})
	return nil
}

func (s *fakeSender) reset() {
	s.sent = nil
}

type fakeTimer struct {
	handle   TimerHandle
	at       time.Duration
	interval time.Duration // 0 なら一度だけ
	fn       func()
}

// fakeScheduler は Advance で時刻を進めたときに同じゴルーチンでコールバックを実行する
type fakeScheduler struct {
	now    time.Duration
	next   TimerHandle
	timers map[TimerHandle]*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{timers: make(map[TimerHandle]*fakeTimer)}
}

func (s *fakeScheduler) add(d, interval time.Duration, fn func()) TimerHandle {
	s.next++
	s.timers[s.next] = &fakeTimer{handle: s.next, at: s.now + d, interval: interval, fn: fn}
	return s.next
}

func (s *fakeScheduler) CallLater(d time.Duration, fn func()) TimerHandle {
	return s.add(d, 0, fn)
}

func (s *fakeScheduler) CallEvery(d time.Duration, fn func()) TimerHandle {
	return s.add(d, d, fn)
}

func (s *fakeScheduler) Cancel(h TimerHandle) {
	delete(s.timers, h)
}

func (s *fakeScheduler) pending() int {
	return len(s.timers)
}

// Advance は d だけ時刻を進め、期限が来たタイマーを時刻順に実行する
func (s *fakeScheduler) Advance(d time.Duration) {
	end := s.now + d
	for {
		var due []*fakeTimer
		for _, t := range s.timers {
			if t.at <= end {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].handle < due[j].handle
			}
			return due[i].at < due[j].at
		})
		t := due[0]
		s.now = t.at
		if t.interval > 0 {
			t.at += t.interval
		} else {
			delete(s.timers, t.handle)
		}
		t.fn()
	}
	s.now = end
}

type testEnv struct {
	monitor   *Monitor
	sender    *fakeSender
	scheduler *fakeScheduler
}

func newTestEnv(t *testing.T, policy SNAPolicy, devices ...*Device) *testEnv {
	t.Helper()
	sender := &fakeSender{}
	scheduler := newFakeScheduler()
	m := NewMonitor(MonitorOptions{
		Sender:    sender,
		Scheduler: scheduler,
		SNAPolicy: policy,
	})
	require.NoError(t, m.Start(selfID, devices...))
	return &testEnv{monitor: m, sender: sender, scheduler: scheduler}
}

func frame(msg *echonet_lite.ECHONETLiteMessage) []byte {
	return msg.Encode()
}

func prop(epc echonet_lite.EPCType, edt ...byte) echonet_lite.Property {
	return echonet_lite.Property{EPC: epc, EDT: edt}
}

var (
	peerProfile    = echonet_lite.NodeProfileObject
	peerController = echonet_lite.MakeEOJ(echonet_lite.Controller_ClassCode, 1)
	sensor1        = echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, 1)
	sensor2        = echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, 2)
	aircon1        = echonet_lite.MakeEOJ(echonet_lite.HomeAirConditioner_ClassCode, 1)
)
