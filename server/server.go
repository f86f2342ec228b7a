package server

import (
	"context"
	"echonet-node/config"
	"echonet-node/console"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"echonet-node/mqttbridge"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

const mqttConnectTimeout = 10 * time.Second

// Server はノード本体と、シェル・HTTP・MQTT の各窓口を束ねる
type Server struct {
	ctx          context.Context
	cancel       context.CancelFunc
	liteHandler  *handler.ECHONETLiteHandler
	registry     *prometheus.Registry
	ws           *WebSocketServer
	shell        *console.ShellServer
	bridge       *mqttbridge.Bridge
	httpErr      chan error
	prevLogger   *slog.Logger
	shutdownOnce sync.Once
}

// HandlerOptionsFromConfig は設定から ECHONETLiteHandler のオプションを作る
func HandlerOptionsFromConfig(cfg *config.Config) (handler.HandlerOptions, error) {
	var opts handler.HandlerOptions
	selfIP, err := cfg.SelfIP()
	if err != nil {
		return opts, err
	}
	manufacturerCode, err := cfg.ManufacturerCodeBytes()
	if err != nil {
		return opts, err
	}
	discoveryInterval, err := cfg.DiscoveryInterval()
	if err != nil {
		return opts, err
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return opts, err
	}

	opts = handler.HandlerOptions{
		SelfIP:            selfIP,
		DiscoveryInterval: discoveryInterval,
		ManufacturerCode:  manufacturerCode,
		PollInterval:      pollInterval,
		Debug:             cfg.Debug,
	}
	if cfg.Node.StrictSNA {
		opts.SNAPolicy = handler.SNAStrict
	}
	for _, s := range cfg.Devices.TemperatureSensors {
		interval, err := s.Interval()
		if err != nil {
			return opts, fmt.Errorf("temperature sensor %d: %w", s.Instance, err)
		}
		opts.TemperatureSensors = append(opts.TemperatureSensors, handler.TemperatureSensorOptions{
			Instance:       echonet_lite.EOJInstanceCode(s.Instance),
			Celsius:        s.Celsius,
			SampleInterval: interval,
		})
	}
	return opts, nil
}

// NewServer はノードを起動し、設定で有効になっている窓口を開く
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	opts, err := HandlerOptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		ctx:        serverCtx,
		cancel:     cancel,
		registry:   prometheus.NewRegistry(),
		httpErr:    make(chan error, 1),
		prevLogger: slog.Default(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts.Metrics = handler.NewMetrics(s.registry)

	liteHandler, err := handler.NewECHONETLiteHandler(serverCtx, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	s.liteHandler = liteHandler

	if err := s.start(cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) start(cfg *config.Config) error {
	if err := s.liteHandler.Start(s.ctx); err != nil {
		return fmt.Errorf("ノードの起動に失敗: %w", err)
	}
	slog.Info("ノードを起動しました", "self", s.liteHandler.SelfID())

	if cfg.HTTPServer.Enabled {
		if err := s.startHTTP(cfg.HTTPAddr()); err != nil {
			return err
		}
	}

	if cfg.MQTT.Enabled {
		bridge, err := mqttbridge.New(mqttbridge.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
		s.bridge = bridge
		ctx, cancel := context.WithTimeout(s.ctx, mqttConnectTimeout)
		defer cancel()
		if err := bridge.Connect(ctx); err != nil {
			return err
		}
		bridge.Attach(s.ctx, s.liteHandler)
	}

	if cfg.Shell.Enabled {
		shell := console.NewShellServer(cfg.Shell.Addr, s)
		if err := shell.Start(); err != nil {
			return err
		}
		s.shell = shell
	}
	return nil
}

func (s *Server) startHTTP(addr string) error {
	transport := NewDefaultWebSocketTransport(s.ctx, addr)
	transport.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.ws = NewWebSocketServer(s.ctx, transport, s.liteHandler, s.Shutdown)

	ready := make(chan struct{})
	go func() {
		if err := s.ws.Start(StartOptions{Ready: ready}); err != nil {
			s.httpErr <- err
		}
	}()
	select {
	case <-ready:
	case err := <-s.httpErr:
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}

	// Warn 以上のログは WebSocket のクライアントにも配信する
	slog.SetDefault(slog.New(NewBroadcastHandler(s.prevLogger.Handler(), s.ws, slog.LevelWarn)))
	return nil
}

// Run は Shutdown されるか、ノードが止まるまで待つ
func (s *Server) Run() error {
	select {
	case <-s.ctx.Done():
		return nil
	case <-s.liteHandler.Done():
		if s.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("イベントループが停止しました")
	case err := <-s.httpErr:
		return fmt.Errorf("HTTPサーバーエラー: %w", err)
	}
}

// Shutdown は Run を終わらせる。どのゴルーチンからでも呼べる。
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		slog.Info("停止の要求を受け付けました")
		s.cancel()
	})
}

func (s *Server) Search(ctx context.Context) error {
	return s.liteHandler.Search(ctx)
}

func (s *Server) ListNodes(ctx context.Context) ([]handler.NodeSnapshot, error) {
	return s.liteHandler.ListNodes(ctx)
}

// Handler は ECHONETLiteHandler を返す
func (s *Server) Handler() *handler.ECHONETLiteHandler {
	return s.liteHandler
}

// Close は開いた窓口とノードを閉じる
func (s *Server) Close() error {
	var err error
	if s.shell != nil {
		err = multierr.Append(err, s.shell.Close())
	}
	if s.ws != nil {
		slog.SetDefault(s.prevLogger)
		err = multierr.Append(err, s.ws.Stop())
	}
	if s.bridge != nil {
		err = multierr.Append(err, s.bridge.Close())
	}
	s.cancel()
	if s.liteHandler != nil {
		err = multierr.Append(err, s.liteHandler.Close())
	}
	return err
}
