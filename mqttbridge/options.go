package mqttbridge

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // ミリ秒
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

// Options はブリッジの設定
type Options struct {
	Broker      string // 例: "tcp://localhost:1883"
	ClientID    string // 空なら自動生成
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool
}

// clientID は ClientID が空なら一意な ID を作る
func (o Options) clientID() string {
	if o.ClientID != "" {
		return o.ClientID
	}
	return "echonet-node-" + uuid.NewString()
}

// buildClientOptions は paho のクライアント設定を作る
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.clientID())
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	return opts
}
