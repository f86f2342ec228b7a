// Package mqttbridge は受信したプロパティを MQTT ブローカーに転送する。
package mqttbridge

import (
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
)

// 転送待ちの上限。あふれたものは捨てる
const queueSize = 256

// Publisher は paho.Client のうち発行に使う部分
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// PropertySource はプロパティの受信を通知するもの
type PropertySource interface {
	OnProperty(fn handler.PropertyObserver)
}

type message struct {
	topic   string
	payload string
}

// Bridge はプロパティを "<prefix>/<node>/<EOJ>/<EPC>" に16進文字列で発行する
type Bridge struct {
	client  pahomqtt.Client // New で作った場合のみ
	pub     Publisher
	opts    Options
	queue   chan message
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	dropped int
}

// New は paho のクライアントを使うブリッジを作成する。Connect で接続すること。
func New(opts Options) (*Bridge, error) {
	if opts.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	client := pahomqtt.NewClient(buildClientOptions(opts))
	b := newBridge(client, opts)
	b.client = client
	return b, nil
}

func newBridge(pub Publisher, opts Options) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "echonet"
	}
	return &Bridge{
		pub:   pub,
		opts:  opts,
		queue: make(chan message, queueSize),
	}
}

// Connect はブローカーに接続する
func (b *Bridge) Connect(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	slog.Info("MQTTブローカーに接続しました", "broker", b.opts.Broker)
	return nil
}

// Attach は source のプロパティを転送するよう登録し、発行ループを開始する
func (b *Bridge) Attach(ctx context.Context, source PropertySource) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.publishLoop(ctx)
	source.OnProperty(b.Enqueue)
}

// Enqueue はプロパティを発行待ちに積む。イベントループから呼ばれるのでブロックしない。
func (b *Bridge) Enqueue(ev handler.PropertyEvent) {
	msg := message{
		topic:   Topic(b.opts.TopicPrefix, ev.NodeID, ev.EOJ, ev.Property.EPC),
		payload: fmt.Sprintf("%X", ev.Property.EDT),
	}
	select {
	case b.queue <- msg:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped はキューがあふれて捨てた数
func (b *Bridge) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			if err := b.publish(msg); err != nil {
				slog.Debug("MQTTへの発行に失敗", "topic", msg.topic, "err", err)
			}
		}
	}
}

func (b *Bridge) publish(msg message) error {
	token := b.pub.Publish(msg.topic, b.opts.QoS, b.opts.Retained, msg.payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close は発行ループを止めて切断する
func (b *Bridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}

// Topic は "<prefix>/<node>/<EOJ>/<EPC>" を返す。
// ノード ID に含まれる MQTT のワイルドカード文字は "_" に置き換える。
func Topic(prefix, nodeID string, eoj echonet_lite.EOJ, epc echonet_lite.EPCType) string {
	node := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(nodeID)
	return fmt.Sprintf("%s/%s/%s/%s", prefix, node, eoj.IDString(), epc)
}
