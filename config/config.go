package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile はデフォルトの設定ファイル名
	DefaultConfigFile = "config.toml"

	DefaultLogFilename       = "echonet-node.log"
	DefaultShellAddr         = ":3611"
	DefaultDiscoveryInterval = "60s"
	DefaultMQTTTopicPrefix   = "echonet"
)

// TemperatureSensorConfig は自ノードに置く温度センサの設定
type TemperatureSensorConfig struct {
	Instance       uint8   `toml:"instance" yaml:"instance"`
	Celsius        float64 `toml:"celsius" yaml:"celsius"`
	SampleInterval string  `toml:"sample_interval" yaml:"sample_interval"` // e.g., "10s"
}

// Config はアプリケーション全体の設定を表す
type Config struct {
	Debug bool `toml:"debug" yaml:"debug"`
	Log   struct {
		Filename string `toml:"filename" yaml:"filename"`
	} `toml:"log" yaml:"log"`
	Node struct {
		SelfAddress      string `toml:"self_address" yaml:"self_address"`           // 空なら自動
		ManufacturerCode string `toml:"manufacturer_code" yaml:"manufacturer_code"` // 16進6桁
		StrictSNA        bool   `toml:"strict_sna" yaml:"strict_sna"`
	} `toml:"node" yaml:"node"`
	Discovery struct {
		Interval string `toml:"interval" yaml:"interval"` // e.g., "60s"
	} `toml:"discovery" yaml:"discovery"`
	Shell struct {
		Enabled bool   `toml:"enabled" yaml:"enabled"`
		Addr    string `toml:"addr" yaml:"addr"`
	} `toml:"shell" yaml:"shell"`
	HTTPServer struct {
		Enabled bool   `toml:"enabled" yaml:"enabled"`
		Host    string `toml:"host" yaml:"host"`
		Port    int    `toml:"port" yaml:"port"`
	} `toml:"http_server" yaml:"http_server"`
	MQTT struct {
		Enabled     bool   `toml:"enabled" yaml:"enabled"`
		Broker      string `toml:"broker" yaml:"broker"` // e.g., "tcp://localhost:1883"
		TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
		ClientID    string `toml:"client_id" yaml:"client_id"` // 空なら自動生成
		Username    string `toml:"username" yaml:"username"`
		Password    string `toml:"password" yaml:"password"`
		QoS         byte   `toml:"qos" yaml:"qos"`
	} `toml:"mqtt" yaml:"mqtt"`
	Devices struct {
		PollInterval       string                    `toml:"poll_interval" yaml:"poll_interval"` // "0" で無効
		TemperatureSensors []TemperatureSensorConfig `toml:"temperature_sensors" yaml:"temperature_sensors"`
	} `toml:"devices" yaml:"devices"`
}

// NewConfig はデフォルト設定を持つConfigを作成する
func NewConfig() *Config {
	cfg := &Config{
		Debug: false,
	}
	cfg.Log.Filename = DefaultLogFilename
	cfg.Discovery.Interval = DefaultDiscoveryInterval
	cfg.Shell.Enabled = true
	cfg.Shell.Addr = DefaultShellAddr
	cfg.HTTPServer.Enabled = false
	cfg.HTTPServer.Host = "localhost"
	cfg.HTTPServer.Port = 8080
	cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	cfg.Devices.PollInterval = "0"
	return cfg
}

// LoadConfig は設定を読み込む
// 以下の優先順位でロードする:
// 1. 指定されたパスの設定ファイル（指定がある場合）
// 2. カレントディレクトリのデフォルト設定ファイル（存在する場合）
// 3. デフォルト設定
//
// 拡張子が .yaml / .yml のファイルは YAML として、それ以外は TOML として読む。
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	// 設定ファイルパスの解決
	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			return config, nil
		}
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
	default:
		if _, err := toml.DecodeFile(filePath, config); err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return config, nil
}

// Validate は値の形式を検査する
func (c *Config) Validate() error {
	if _, err := c.SelfIP(); err != nil {
		return err
	}
	if _, err := c.ManufacturerCodeBytes(); err != nil {
		return err
	}
	if _, err := c.DiscoveryInterval(); err != nil {
		return err
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	seen := make(map[uint8]bool)
	for _, s := range c.Devices.TemperatureSensors {
		if s.Instance == 0 {
			return fmt.Errorf("temperature sensor instance must be 1-255")
		}
		if seen[s.Instance] {
			return fmt.Errorf("duplicate temperature sensor instance: %d", s.Instance)
		}
		seen[s.Instance] = true
		if _, err := s.Interval(); err != nil {
			return err
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2: %d", c.MQTT.QoS)
	}
	return nil
}

// SelfIP は node.self_address を返す。空の場合は nil。
func (c *Config) SelfIP() (net.IP, error) {
	if c.Node.SelfAddress == "" {
		return nil, nil
	}
	ip := net.ParseIP(c.Node.SelfAddress)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("node.self_address must be an IPv4 address: %q", c.Node.SelfAddress)
	}
	return ip.To4(), nil
}

// ManufacturerCodeBytes は node.manufacturer_code を3バイトに変換する。空の場合は nil。
func (c *Config) ManufacturerCodeBytes() ([]byte, error) {
	if c.Node.ManufacturerCode == "" {
		return nil, nil
	}
	code, err := hex.DecodeString(c.Node.ManufacturerCode)
	if err != nil || len(code) != 3 {
		return nil, fmt.Errorf("node.manufacturer_code must be 6 hex digits: %q", c.Node.ManufacturerCode)
	}
	return code, nil
}

// Interval は sample_interval を返す。空の場合は 0。
func (s TemperatureSensorConfig) Interval() (time.Duration, error) {
	return parseDuration(s.SampleInterval, "sample_interval")
}

func (c *Config) DiscoveryInterval() (time.Duration, error) {
	return parseDuration(c.Discovery.Interval, "discovery.interval")
}

func (c *Config) PollInterval() (time.Duration, error) {
	return parseDuration(c.Devices.PollInterval, "devices.poll_interval")
}

// HTTPAddr は HTTP サーバーの待ち受けアドレス
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPServer.Host, strconv.Itoa(c.HTTPServer.Port))
}

func parseDuration(s, name string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative: %s", name, s)
	}
	return d, nil
}

// ApplyCommandLineArgs はコマンドライン引数で指定された値を設定に適用する
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.SelfAddressSpecified {
		c.Node.SelfAddress = args.SelfAddress
	}
	if args.StrictSNASpecified {
		c.Node.StrictSNA = args.StrictSNA
	}
	// シェルのアドレスを空にすると無効
	if args.ShellAddrSpecified {
		c.Shell.Addr = args.ShellAddr
		c.Shell.Enabled = args.ShellAddr != ""
	}
	if args.HTTPAddrSpecified {
		if host, port, err := net.SplitHostPort(args.HTTPAddr); err == nil {
			if p, err := strconv.Atoi(port); err == nil {
				c.HTTPServer.Host = host
				c.HTTPServer.Port = p
				c.HTTPServer.Enabled = true
			}
		}
	}
	if args.MQTTBrokerSpecified {
		c.MQTT.Broker = args.MQTTBroker
		c.MQTT.Enabled = args.MQTTBroker != ""
	}
}

// CommandLineArgs はコマンドライン引数からの値を保持する
type CommandLineArgs struct {
	// 設定ファイル (メタ設定)
	ConfigFile      string
	ConfigSpecified bool

	// 一般設定
	Debug          bool
	DebugSpecified bool

	// ログ設定
	LogFilename          string
	LogFilenameSpecified bool

	// ノード設定
	SelfAddress          string
	SelfAddressSpecified bool
	StrictSNA            bool
	StrictSNASpecified   bool

	// 操作用シェル
	ShellAddr          string
	ShellAddrSpecified bool

	// HTTPサーバー (host:port)
	HTTPAddr          string
	HTTPAddrSpecified bool

	// MQTT
	MQTTBroker          string
	MQTTBrokerSpecified bool

	// 指定された場合はノードを起動せず、そのアドレスのシェルに接続する
	Connect string
}

// ParseCommandLineArgs はコマンドライン引数をパースする
func ParseCommandLineArgs() CommandLineArgs {
	args, err := ParseArgs(os.Args[1:], flag.ExitOnError)
	if err != nil {
		// ExitOnError の場合はここに来ない
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return args
}

// ParseArgs は argv をパースする。指定されたフラグだけ *Specified が true になる。
func ParseArgs(argv []string, handling flag.ErrorHandling) (CommandLineArgs, error) {
	var args CommandLineArgs
	fs := flag.NewFlagSet("echonet-node", handling)

	fs.StringVar(&args.ConfigFile, "config", "", "設定ファイルのパスを指定する (.toml / .yaml)")
	fs.BoolVar(&args.Debug, "debug", false, "デバッグモードを有効にする")
	fs.StringVar(&args.LogFilename, "log", DefaultLogFilename, "ログファイル名を指定する")
	fs.StringVar(&args.SelfAddress, "self", "", "自ノードのIPv4アドレスを指定する")
	fs.BoolVar(&args.StrictSNA, "strict-sna", false, "応答できない要求に不可応答(SNA)を返す")
	fs.StringVar(&args.ShellAddr, "shell", DefaultShellAddr, "操作用シェルの待ち受けアドレス (空で無効)")
	fs.StringVar(&args.HTTPAddr, "http", "", "WebSocket と /metrics を提供する HTTP サーバーのアドレス (host:port)")
	fs.StringVar(&args.MQTTBroker, "mqtt-broker", "", "MQTTブローカーのURL (例: tcp://localhost:1883)")
	fs.StringVar(&args.Connect, "connect", "", "起動中のノードに接続する (シェルの host:port または ws://host:port/ws)")

	if err := fs.Parse(argv); err != nil {
		return args, err
	}

	// 値と指定有無の設定
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			args.ConfigSpecified = true
		case "debug":
			args.DebugSpecified = true
		case "log":
			args.LogFilenameSpecified = true
		case "self":
			args.SelfAddressSpecified = true
		case "strict-sna":
			args.StrictSNASpecified = true
		case "shell":
			args.ShellAddrSpecified = true
		case "http":
			args.HTTPAddrSpecified = true
		case "mqtt-broker":
			args.MQTTBrokerSpecified = true
		}
	})
	return args, nil
}
