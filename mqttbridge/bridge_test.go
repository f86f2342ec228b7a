package mqttbridge

import (
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToken はすぐに完了する Token
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  interface{}
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, qos, retained, payload})
	if p.token != nil {
		return p.token
	}
	return &fakeToken{}
}

func (p *fakePublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

// fakeSource は登録されたオブザーバーを保持する
type fakeSource struct {
	observers []handler.PropertyObserver
}

func (s *fakeSource) OnProperty(fn handler.PropertyObserver) {
	s.observers = append(s.observers, fn)
}

func (s *fakeSource) emit(ev handler.PropertyEvent) {
	for _, fn := range s.observers {
		fn(ev)
	}
}

var sensor = echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, 1)

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		node   string
		eoj    echonet_lite.EOJ
		epc    echonet_lite.EPCType
		want   string
	}{
		{"echonet", "192.168.0.20", sensor, 0xe0, "echonet/192.168.0.20/001101/E0"},
		{"home/el", "192.168.0.21", echonet_lite.NodeProfileObject, 0xd6, "home/el/192.168.0.21/0EF001/D6"},
		{"echonet", "a/b+c#", sensor, 0x80, "echonet/a_b_c_/001101/80"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Topic(tt.prefix, tt.node, tt.eoj, tt.epc))
	}
}

func TestBridge_PublishesObservedProperties(t *testing.T) {
	pub := &fakePublisher{}
	b := newBridge(pub, Options{QoS: 1, Retained: true})
	src := &fakeSource{}
	b.Attach(context.Background(), src)
	defer b.Close()

	require.Len(t, src.observers, 1)
	src.emit(handler.PropertyEvent{
		NodeID:   "192.168.0.20",
		EOJ:      sensor,
		ESV:      echonet_lite.ESVINF,
		Property: echonet_lite.Property{EPC: 0xe0, EDT: []byte{0x00, 0xe6}},
	})

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, published{
		Topic:    "echonet/192.168.0.20/001101/E0",
		QoS:      1,
		Retained: true,
		Payload:  "00E6",
	}, pub.published()[0])
}

func TestBridge_PublishError(t *testing.T) {
	b := newBridge(&fakePublisher{token: &fakeToken{err: errors.New("not connected")}}, Options{})
	err := b.publish(message{topic: "echonet/x/001101/E0", payload: "00"})
	assert.ErrorIs(t, err, ErrPublishFailed)

	b = newBridge(&fakePublisher{token: &fakeToken{timeout: true}}, Options{})
	err = b.publish(message{topic: "echonet/x/001101/E0", payload: "00"})
	assert.ErrorIs(t, err, ErrPublishFailed)
}

func TestBridge_EnqueueNeverBlocks(t *testing.T) {
	// 発行ループを動かさずに積み続ける
	b := newBridge(&fakePublisher{}, Options{})
	ev := handler.PropertyEvent{NodeID: "n", EOJ: sensor, Property: echonet_lite.Property{EPC: 0xe0}}
	for i := 0; i < queueSize+10; i++ {
		b.Enqueue(ev)
	}
	assert.Equal(t, 10, b.Dropped())
}

func TestNew_InvalidQoS(t *testing.T) {
	_, err := New(Options{Broker: "tcp://127.0.0.1:1883", QoS: 3})
	assert.ErrorIs(t, err, ErrInvalidQoS)
}

func TestOptions_ClientID(t *testing.T) {
	assert.Equal(t, "fixed", Options{ClientID: "fixed"}.clientID())

	a, b := Options{}.clientID(), Options{}.clientID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "echonet-node-")

	opts := buildClientOptions(Options{Broker: "tcp://127.0.0.1:1883", Username: "u", Password: "p"})
	assert.Equal(t, "u", opts.Username)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "127.0.0.1:1883", opts.Servers[0].Host)
}
