package handler

import (
	"echonet-node/echonet_lite"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// MulticastNodeID は Sender に渡す宛先のうち、マルチキャストグループを表すもの
const MulticastNodeID = ""

// DefaultDiscoveryInterval はノードプロファイルの定期探索間隔
const DefaultDiscoveryInterval = 60 * time.Second

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrNoScheduler    = errors.New("monitor has no scheduler")
	ErrNotStarted     = errors.New("monitor not started")
	ErrNoSender       = errors.New("no sender configured")
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownDevice  = errors.New("unknown device")
)

// Sender はエンコード済みのメッセージを送信する。nodeID が空ならマルチキャスト。
type Sender interface {
	Send(nodeID string, data []byte) error
}

// DeviceFactory は探索で見つかったデバイスを作る。nil を返すと汎用のデバイスが作られる。
type DeviceFactory func(nodeID string, eoj echonet_lite.EOJ) *Device

// PropertyEvent は受信したプロパティ1件
type PropertyEvent struct {
	NodeID   string
	EOJ      echonet_lite.EOJ // 送信元
	ESV      echonet_lite.ESVType
	Property echonet_lite.Property
}

type PropertyObserver func(PropertyEvent)

type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	NodeAdded
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceAdded:
		return "device_added"
	case DeviceRemoved:
		return "device_removed"
	case NodeAdded:
		return "node_added"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

type DeviceEvent struct {
	Type   DeviceEventType
	NodeID string
	EOJ    echonet_lite.EOJ
}

type DeviceObserver func(DeviceEvent)

// ErrorHookFunc は自ノードのデバイス宛ての不可応答(SNA)を受け取る
type ErrorHookFunc func(nodeID string, device *Device, msg *echonet_lite.ECHONETLiteMessage)

type MonitorOptions struct {
	Sender Sender
	// Scheduler は必須。コールバックをイベントループで実行するものを渡す。
	Scheduler         Scheduler
	DeviceFactory     DeviceFactory
	SNAPolicy         SNAPolicy
	DiscoveryInterval time.Duration
	ManufacturerCode  []byte
	Metrics           *Metrics
}

// Monitor はノードとデバイスの登録簿。ノード・デバイスの生成と削除は Monitor だけが行う。
// メソッドはイベントループ (HandlerCore) 上から呼ぶこと。
type Monitor struct {
	sender           Sender
	scheduler        Scheduler
	factory          DeviceFactory
	snaPolicy        SNAPolicy
	metrics          *Metrics
	manufacturerCode []byte

	selfID    string
	nodes     map[string]*Node
	tid       echonet_lite.TIDType
	discovery *Discovery

	propertyObservers []PropertyObserver
	deviceObservers   []DeviceObserver
	onError           ErrorHookFunc
}

func NewMonitor(opts MonitorOptions) *Monitor {
	interval := opts.DiscoveryInterval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	manufacturerCode := opts.ManufacturerCode
	if len(manufacturerCode) != 3 {
		manufacturerCode = echonet_lite.ExperimentalManufacturerCode
	}
	m := &Monitor{
		sender:           opts.Sender,
		scheduler:        opts.Scheduler,
		factory:          opts.DeviceFactory,
		snaPolicy:        opts.SNAPolicy,
		metrics:          opts.Metrics,
		manufacturerCode: manufacturerCode,
		nodes:            make(map[string]*Node),
		onError:          func(string, *Device, *echonet_lite.ECHONETLiteMessage) {},
	}
	m.discovery = newDiscovery(m, interval)
	return m
}

func (m *Monitor) SetSender(s Sender) {
	m.sender = s
}

func (m *Monitor) SetDeviceFactory(f DeviceFactory) {
	m.factory = f
}

func (m *Monitor) Scheduler() Scheduler {
	return m.scheduler
}

func (m *Monitor) ManufacturerCode() []byte {
	return m.manufacturerCode
}

func (m *Monitor) Discovery() *Discovery {
	return m.discovery
}

func (m *Monitor) OnProperty(fn PropertyObserver) {
	m.propertyObservers = append(m.propertyObservers, fn)
}

func (m *Monitor) OnDeviceEvent(fn DeviceObserver) {
	m.deviceObservers = append(m.deviceObservers, fn)
}

func (m *Monitor) OnError(fn ErrorHookFunc) {
	if fn == nil {
		fn = func(string, *Device, *echonet_lite.ECHONETLiteMessage) {}
	}
	m.onError = fn
}

// Start は自ノードを作成し、プロファイルを集計して探索を開始する。
// devices にノードプロファイルが無ければ既定のものを作る。
func (m *Monitor) Start(selfID string, devices ...*Device) error {
	if m.selfID != "" {
		return ErrAlreadyStarted
	}
	if m.scheduler == nil {
		return ErrNoScheduler
	}
	if selfID == MulticastNodeID {
		return fmt.Errorf("self node id must not be empty")
	}

	var profile *Device
	seen := make(map[echonet_lite.EOJ]struct{}, len(devices))
	for _, d := range devices {
		if _, dup := seen[d.EOJ]; dup {
			return fmt.Errorf("duplicate device %v", d.EOJ)
		}
		seen[d.EOJ] = struct{}{}
		if !d.IsLocal() {
			return fmt.Errorf("device %v is not a local device", d.EOJ)
		}
		if d.EOJ.IsProfile() {
			if d.Kind != DeviceProfile {
				return fmt.Errorf("device %v must be created by NewNodeProfile", d.EOJ)
			}
			if profile != nil {
				return fmt.Errorf("node profile must be unique: %v, %v", profile.EOJ, d.EOJ)
			}
			profile = d
		}
	}
	if profile == nil {
		profile = NewNodeProfile(m.manufacturerCode)
		devices = append(devices, profile)
	}

	m.selfID = selfID
	self := NewNode(selfID, devices...)
	m.nodes[selfID] = self
	m.updateDeviceNumbers()
	m.updateInventoryMetrics()

	slog.Info("自ノードを開始", "node", selfID, "devices", self.EOJs())
	m.discovery.Start(profile)
	return nil
}

// Stop は探索を止める
func (m *Monitor) Stop() {
	m.discovery.Stop()
}

func (m *Monitor) started() bool {
	return m.selfID != ""
}

// Receive はデータグラムをデコードして配送する。デコードに失敗したものは記録して捨てる。
func (m *Monitor) Receive(data []byte, from string) {
	if !m.started() {
		return
	}
	msg, err := echonet_lite.ParseECHONETLiteMessage(data)
	if err != nil {
		m.metrics.decodeError()
		slog.Warn("パケット解析エラー", "from", from, "err", err)
		return
	}
	m.metrics.messageReceived(msg.ESV.String())
	slog.Debug("受信", "from", from, "msg", msg)

	if _, ok := m.nodes[from]; !ok {
		m.nodes[from] = NewNode(from)
		m.updateInventoryMetrics()
		m.notifyDevice(DeviceEvent{Type: NodeAdded, NodeID: from})
	}
	m.Deliver(msg, from)
}

func (m *Monitor) nextTID() echonet_lite.TIDType {
	m.tid++
	return m.tid
}

// Send は新しい TID を割り当てて送信する
func (m *Monitor) Send(msg *echonet_lite.ECHONETLiteMessage, to string) error {
	msg.TID = m.nextTID()
	return m.transmit(msg, to)
}

// Reply は要求と同じ TID で応答を送信する
func (m *Monitor) Reply(req *echonet_lite.ECHONETLiteMessage, msg *echonet_lite.ECHONETLiteMessage, to string) error {
	msg.TID = req.TID
	return m.transmit(msg, to)
}

// SendFrom は device を送信元として送信する
func (m *Monitor) SendFrom(device *Device, esv echonet_lite.ESVType, props echonet_lite.Properties, deoj echonet_lite.EOJ, to string) error {
	return m.Send(&echonet_lite.ECHONETLiteMessage{
		SEOJ:       device.EOJ,
		DEOJ:       deoj,
		ESV:        esv,
		Properties: props,
	}, to)
}

func (m *Monitor) transmit(msg *echonet_lite.ECHONETLiteMessage, to string) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if m.sender == nil {
		return ErrNoSender
	}
	slog.Debug("送信", "to", to, "msg", msg)
	if err := m.sender.Send(to, msg.Encode()); err != nil {
		m.metrics.sendError()
		slog.Warn("パケット送信エラー", "to", to, "err", err)
		return fmt.Errorf("send to %q: %w", to, err)
	}
	m.metrics.messageSent(msg.ESV.String())
	return nil
}

// Nodes はノード ID 順の一覧
func (m *Monitor) Nodes() []*Node {
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return strings.Compare(a.ID, b.ID)
	})
	return nodes
}

func (m *Monitor) Node(id string) (*Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

func (m *Monitor) SelfNode() *Node {
	return m.nodes[m.selfID]
}

func (m *Monitor) SelfID() string {
	return m.selfID
}

// AddDevice はノードにデバイスを追加する。ノードが無ければ作る。
func (m *Monitor) AddDevice(nodeID string, d *Device) {
	node, ok := m.nodes[nodeID]
	if !ok {
		node = NewNode(nodeID)
		m.nodes[nodeID] = node
		m.notifyDevice(DeviceEvent{Type: NodeAdded, NodeID: nodeID})
	}
	node.AddDevice(d)
	if nodeID == m.selfID {
		m.updateDeviceNumbers()
	}
	m.updateInventoryMetrics()
	m.notifyDevice(DeviceEvent{Type: DeviceAdded, NodeID: nodeID, EOJ: d.EOJ})
}

// RemoveDevice はデバイスを取り除く。自ノードのプロファイルは取り除けない。
func (m *Monitor) RemoveDevice(nodeID string, eoj echonet_lite.EOJ) error {
	node, ok := m.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if nodeID == m.selfID && eoj.IsProfile() {
		return fmt.Errorf("cannot remove node profile %v", eoj)
	}
	d, ok := node.RemoveDevice(eoj)
	if !ok {
		return fmt.Errorf("%w: %s %v", ErrUnknownDevice, nodeID, eoj)
	}
	if d.onRemove != nil {
		d.onRemove()
	}
	if nodeID == m.selfID {
		m.updateDeviceNumbers()
	}
	m.updateInventoryMetrics()
	m.notifyDevice(DeviceEvent{Type: DeviceRemoved, NodeID: nodeID, EOJ: eoj})
	return nil
}

// UpdateLocalProperty は自ノードのデバイスの値を更新し、アナウンス対象なら INF で通知する
func (m *Monitor) UpdateLocalProperty(eoj echonet_lite.EOJ, p echonet_lite.Property) error {
	self := m.SelfNode()
	if self == nil {
		return ErrNotStarted
	}
	d, ok := self.Device(eoj)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownDevice, eoj)
	}
	if d.SetProperty(p) && d.announceMap.Has(p.EPC) {
		return m.announce(d, echonet_lite.Properties{p})
	}
	return nil
}

// Search は全ノードのプロファイルにインスタンスリストを問い合わせる
func (m *Monitor) Search() error {
	if !m.started() {
		return ErrNotStarted
	}
	return m.discovery.Search()
}

func (m *Monitor) announce(d *Device, props echonet_lite.Properties) error {
	if len(props) == 0 {
		return nil
	}
	return m.SendFrom(d, echonet_lite.ESVINF, props, echonet_lite.NodeProfileObject, MulticastNodeID)
}

func (m *Monitor) updateDeviceNumbers() {
	self := m.SelfNode()
	if self == nil {
		return
	}
	if profile := self.Profile(); profile != nil {
		profile.UpdateDeviceNumbers(self.Devices())
	}
}

func (m *Monitor) updateInventoryMetrics() {
	devices := 0
	for _, n := range m.nodes {
		devices += n.Len()
	}
	m.metrics.setInventory(len(m.nodes), devices)
}

func (m *Monitor) notifyDevice(ev DeviceEvent) {
	for _, fn := range m.deviceObservers {
		fn(ev)
	}
}

func (m *Monitor) notifyProperty(ev PropertyEvent) {
	for _, fn := range m.propertyObservers {
		fn(ev)
	}
}

// DeviceSnapshot はイベントループの外に渡すためのデバイスの写し
type DeviceSnapshot struct {
	EOJ        echonet_lite.EOJ
	Kind       DeviceKind
	Properties echonet_lite.Properties
}

// NodeSnapshot はイベントループの外に渡すためのノードの写し
type NodeSnapshot struct {
	ID      string
	Self    bool
	Devices []DeviceSnapshot
}

// Snapshot は全ノードの写しをノード ID 順に返す
func (m *Monitor) Snapshot() []NodeSnapshot {
	nodes := m.Nodes()
	result := make([]NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		ns := NodeSnapshot{ID: n.ID, Self: n.ID == m.selfID}
		for _, d := range n.Devices() {
			props := d.Properties()
			copied := make(echonet_lite.Properties, len(props))
			for i, p := range props {
				copied[i] = echonet_lite.Property{EPC: p.EPC, EDT: append([]byte(nil), p.EDT...)}
			}
			ns.Devices = append(ns.Devices, DeviceSnapshot{EOJ: d.EOJ, Kind: d.Kind, Properties: copied})
		}
		result = append(result, ns)
	}
	return result
}
