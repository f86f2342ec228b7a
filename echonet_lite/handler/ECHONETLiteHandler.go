package handler

import (
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/network"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// TemperatureSensorOptions は自ノードに置く温度センサの設定
type TemperatureSensorOptions struct {
	Instance       echonet_lite.EOJInstanceCode
	Celsius        float64
	SampleInterval time.Duration
}

// HandlerOptions は ECHONETLiteHandler の設定
type HandlerOptions struct {
	SelfIP             net.IP // nil の場合はマルチキャストの経路から決める
	SNAPolicy          SNAPolicy
	DiscoveryInterval  time.Duration
	ManufacturerCode   []byte
	TemperatureSensors []TemperatureSensorOptions
	PollInterval       time.Duration // 0 の場合は遠隔の温度センサを問い合わせない
	NetworkMonitor     *network.NetworkMonitorConfig
	Metrics            *Metrics
	Clock              clock.Clock
	Debug              bool
}

// ECHONETLiteHandler は、ECHONET Lite の通信処理を担当する構造体。
// イベントループ・登録簿・UDPセッションを束ねるファサードとして機能する。
type ECHONETLiteHandler struct {
	core      *HandlerCore
	monitor   *Monitor
	session   *Session
	scheduler *ClockScheduler
	selfID    string
	devices   []*Device
	sensors   []TemperatureSensorOptions
}

// NewECHONETLiteHandler は、ECHONETLiteHandler の新しいインスタンスを作成する
func NewECHONETLiteHandler(ctx context.Context, opts HandlerOptions) (*ECHONETLiteHandler, error) {
	selfIP := opts.SelfIP
	if selfIP == nil {
		addr, err := network.GetLocalUDPAddressFor(network.ECHONETLiteMulticastIPv4, echonet_lite.ECHONETLitePort)
		if err != nil {
			return nil, fmt.Errorf("自ノードのアドレスを決定できません: %w", err)
		}
		selfIP = addr.IP
	}

	core := NewHandlerCore(ctx, opts.Debug)
	scheduler := NewClockScheduler(opts.Clock, core.Post)
	monitor := NewMonitor(MonitorOptions{
		Scheduler:         scheduler,
		SNAPolicy:         opts.SNAPolicy,
		DiscoveryInterval: opts.DiscoveryInterval,
		ManufacturerCode:  opts.ManufacturerCode,
		Metrics:           opts.Metrics,
	})

	session, err := CreateSession(core.ctx, selfIP, core, opts.NetworkMonitor, opts.Debug)
	if err != nil {
		_ = core.Close()
		return nil, fmt.Errorf("接続に失敗: %w", err)
	}
	monitor.SetSender(session)

	manufacturerCode := monitor.ManufacturerCode()
	controller := NewController(1, manufacturerCode)
	devices := []*Device{NewNodeProfile(manufacturerCode), controller}
	for _, s := range opts.TemperatureSensors {
		devices = append(devices, NewTemperatureSensor(s.Instance, manufacturerCode))
	}
	if opts.PollInterval > 0 {
		monitor.SetDeviceFactory(NewTemperaturePoller(monitor, controller, opts.PollInterval, nil))
	}

	return &ECHONETLiteHandler{
		core:      core,
		monitor:   monitor,
		session:   session,
		scheduler: scheduler,
		selfID:    selfIP.String(),
		devices:   devices,
		sensors:   opts.TemperatureSensors,
	}, nil
}

// Start はイベントループと受信ループを開始し、自ノードを立ち上げる
func (h *ECHONETLiteHandler) Start(ctx context.Context) error {
	go func() {
		if err := h.core.Run(); err != nil {
			slog.Error("イベントループが異常終了", "err", err)
		}
	}()

	var startErr error
	err := h.core.Do(ctx, func() {
		if startErr = h.monitor.Start(h.selfID, h.devices...); startErr != nil {
			return
		}
		for i, s := range h.sensors {
			interval := s.SampleInterval
			if interval <= 0 {
				interval = time.Second
			}
			sensor := h.devices[2+i]
			StartSampling(h.monitor, sensor, interval, FixedTemperature(echonet_lite.NewTemperature(s.Celsius)))
		}
	})
	if err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	go h.session.MainLoop(h.monitor.Receive)
	return nil
}

// Close は、ECHONETLiteHandler のリソースを解放する
func (h *ECHONETLiteHandler) Close() error {
	h.scheduler.CancelAll()
	return multierr.Combine(
		h.session.Close(),
		h.core.Close(),
	)
}

// Done はイベントループが止まると閉じられる
func (h *ECHONETLiteHandler) Done() <-chan struct{} {
	return h.core.Done()
}

// SetDebug は、デバッグモードを設定する
func (h *ECHONETLiteHandler) SetDebug(debug bool) {
	h.core.SetDebug(debug)
	h.session.Debug = debug
}

// IsDebug は、現在のデバッグモードを返す
func (h *ECHONETLiteHandler) IsDebug() bool {
	if h == nil || h.core == nil {
		return false
	}
	return h.core.IsDebug()
}

func (h *ECHONETLiteHandler) SelfID() string {
	return h.selfID
}

// OnProperty は受信したプロパティのオブザーバーを登録する。fn はイベントループで呼ばれる。
func (h *ECHONETLiteHandler) OnProperty(fn PropertyObserver) {
	h.core.Post(func() { h.monitor.OnProperty(fn) })
}

// OnDeviceEvent はデバイスの追加・削除のオブザーバーを登録する。fn はイベントループで呼ばれる。
func (h *ECHONETLiteHandler) OnDeviceEvent(fn DeviceObserver) {
	h.core.Post(func() { h.monitor.OnDeviceEvent(fn) })
}

// Search は全ノードのインスタンスリストを問い合わせる
func (h *ECHONETLiteHandler) Search(ctx context.Context) error {
	var searchErr error
	if err := h.core.Do(ctx, func() { searchErr = h.monitor.Search() }); err != nil {
		return err
	}
	return searchErr
}

// ListNodes は既知のノードとデバイスのスナップショットを返す
func (h *ECHONETLiteHandler) ListNodes(ctx context.Context) ([]NodeSnapshot, error) {
	var nodes []NodeSnapshot
	if err := h.core.Do(ctx, func() { nodes = h.monitor.Snapshot() }); err != nil {
		return nil, err
	}
	return nodes, nil
}
