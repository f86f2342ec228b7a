package handler

import (
	"echonet-node/echonet_lite"
	"fmt"
	"log/slog"
	"time"
)

// NewNodeProfile は自ノードのノードプロファイル (0EF001) を作成する
func NewNodeProfile(manufacturerCode []byte) *Device {
	if len(manufacturerCode) != 3 {
		manufacturerCode = echonet_lite.ExperimentalManufacturerCode
	}
	d := newLocalDevice(echonet_lite.NodeProfileObject, DeviceProfile)
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCOperationStatus, EDT: []byte{echonet_lite.OperationStatusBooting}})
	d.SetProperty(*echonet_lite.ECHONETLite_Version.Property())
	d.SetProperty(*echonet_lite.IdentificationNumber{ManufacturerCode: manufacturerCode}.Property())
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCManufacturerCode, EDT: manufacturerCode})
	d.SetAnnounceMap(echonet_lite.EPCOperationStatus, echonet_lite.EPC_NPO_InstanceListNotification)
	d.SetSetMap()
	d.SetGetMap(
		echonet_lite.EPCOperationStatus,
		echonet_lite.EPC_NPO_VersionInfo,
		echonet_lite.EPCIdentificationNumber,
		echonet_lite.EPCManufacturerCode,
		echonet_lite.EPC_NPO_SelfNodeInstances,
		echonet_lite.EPC_NPO_SelfNodeClasses,
		echonet_lite.EPC_NPO_InstanceListNotification,
		echonet_lite.EPC_NPO_SelfNodeInstanceListS,
		echonet_lite.EPC_NPO_SelfNodeClassListS,
	)
	d.UpdateDeviceNumbers([]*Device{d})
	return d
}

// UpdateDeviceNumbers はノード内のデバイス構成から 0xD3〜0xD7 を再計算する
func (d *Device) UpdateDeviceNumbers(devices []*Device) {
	eojs := make([]echonet_lite.EOJ, 0, len(devices))
	for _, dev := range devices {
		eojs = append(eojs, dev.EOJ)
	}
	for _, p := range echonet_lite.NewNodeInventory(eojs).Properties() {
		d.SetProperty(p)
	}
}

// DiscoveryState は探索の進行状況
type DiscoveryState int

const (
	DiscoveryBooting DiscoveryState = iota
	DiscoveryAwaitingPeerStatus
	DiscoveryAwaitingInstanceList
	DiscoverySteady
)

func (s DiscoveryState) String() string {
	switch s {
	case DiscoveryBooting:
		return "booting"
	case DiscoveryAwaitingPeerStatus:
		return "awaiting_peer_status"
	case DiscoveryAwaitingInstanceList:
		return "awaiting_instance_list"
	case DiscoverySteady:
		return "steady"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Discovery はノードプロファイルによるデバイス探索。
// 起動直後と interval ごとに動作状態を問い合わせ、起動中と答えたノードのインスタンスリストを取得する。
type Discovery struct {
	monitor  *Monitor
	profile  *Device
	interval time.Duration

	state    DiscoveryState
	peers    map[string]DiscoveryState
	versions map[string]echonet_lite.NPO_VersionInfo

	timers []TimerHandle
}

func newDiscovery(m *Monitor, interval time.Duration) *Discovery {
	return &Discovery{
		monitor:  m,
		interval: interval,
		peers:    make(map[string]DiscoveryState),
		versions: make(map[string]echonet_lite.NPO_VersionInfo),
	}
}

func (d *Discovery) Interval() time.Duration {
	return d.interval
}

func (d *Discovery) State() DiscoveryState {
	return d.state
}

func (d *Discovery) PeerState(nodeID string) DiscoveryState {
	return d.peers[nodeID]
}

// PeerVersion は応答で受け取ったノードの ECHONET Lite バージョン
func (d *Discovery) PeerVersion(nodeID string) (echonet_lite.NPO_VersionInfo, bool) {
	v, ok := d.versions[nodeID]
	return v, ok
}

// Start は即時の問い合わせと定期的な問い合わせを登録する
func (d *Discovery) Start(profile *Device) {
	d.Stop()
	d.profile = profile
	scheduler := d.monitor.scheduler
	d.timers = append(d.timers,
		scheduler.CallLater(0, d.probe),
		scheduler.CallEvery(d.interval, d.probe),
	)
}

// Stop は登録したタイマーを解除する
func (d *Discovery) Stop() {
	for _, h := range d.timers {
		d.monitor.scheduler.Cancel(h)
	}
	d.timers = nil
}

// probe は全ノードのプロファイルに動作状態を問い合わせる
func (d *Discovery) probe() {
	if d.profile == nil {
		return
	}
	if d.state == DiscoveryBooting {
		d.state = DiscoveryAwaitingPeerStatus
	}
	err := d.monitor.SendFrom(d.profile, echonet_lite.ESVGet,
		echonet_lite.RequestProperties(echonet_lite.EPCOperationStatus),
		echonet_lite.NodeProfileObject, MulticastNodeID)
	if err != nil {
		slog.Warn("動作状態の問い合わせに失敗", "err", err)
	}
}

// Search は全ノードのプロファイルにインスタンスリストを問い合わせる
func (d *Discovery) Search() error {
	if d.profile == nil {
		return ErrNotStarted
	}
	return d.monitor.SendFrom(d.profile, echonet_lite.ESVGet,
		echonet_lite.RequestProperties(echonet_lite.EPC_NPO_SelfNodeInstanceListS),
		echonet_lite.NodeProfileObject, MulticastNodeID)
}

// handleResponse は自ノードのプロファイル宛ての応答・通知を処理する
func (d *Discovery) handleResponse(msg *echonet_lite.ECHONETLiteMessage, origin string) {
	props := msg.Properties
	if p, ok := props.FindEPC(echonet_lite.EPC_NPO_VersionInfo); ok {
		d.onVersionInfo(origin, p)
	}
	if p, ok := props.FindEPC(echonet_lite.EPCOperationStatus); ok {
		d.onOperationStatus(msg.SEOJ, origin, p)
	}
	for _, epc := range []echonet_lite.EPCType{echonet_lite.EPC_NPO_SelfNodeInstanceListS, echonet_lite.EPC_NPO_InstanceListNotification} {
		if p, ok := props.FindEPC(epc); ok {
			d.onInstanceList(origin, p)
		}
	}
}

func (d *Discovery) onVersionInfo(origin string, p echonet_lite.Property) {
	v := echonet_lite.NPO_DecodeVersionInfo(p.EDT)
	if v == nil {
		slog.Debug("バージョン情報が不正です", "from", origin, "EDT", p.EDTString())
		return
	}
	d.versions[origin] = *v
	slog.Debug("ノードのバージョン", "node", origin, "major", v.MajorVersion, "minor", v.MinorVersion)
}

func (d *Discovery) onOperationStatus(from echonet_lite.EOJ, origin string, p echonet_lite.Property) {
	if len(p.EDT) != 1 || p.EDT[0] != echonet_lite.OperationStatusBooting {
		return
	}
	if d.profile == nil {
		return
	}
	if d.peers[origin] < DiscoveryAwaitingInstanceList {
		d.peers[origin] = DiscoveryAwaitingInstanceList
	}
	if d.state < DiscoveryAwaitingInstanceList {
		d.state = DiscoveryAwaitingInstanceList
	}
	err := d.monitor.SendFrom(d.profile, echonet_lite.ESVGet,
		echonet_lite.RequestProperties(echonet_lite.EPC_NPO_SelfNodeInstanceListS),
		from, origin)
	if err != nil {
		slog.Warn("インスタンスリストの問い合わせに失敗", "to", origin, "err", err)
	}
}

// onInstanceList はインスタンスリストに含まれる未知のデバイスを登録する。
// 壊れたリストは一部も適用しない。
func (d *Discovery) onInstanceList(origin string, p echonet_lite.Property) {
	if len(p.EDT) == 0 {
		return
	}
	list := echonet_lite.DecodeInstanceList(p.EDT)
	if list == nil {
		slog.Warn("インスタンスリストが不正です", "from", origin, "EPC", p.EPC, "EDT", p.EDTString())
		return
	}
	if origin == d.monitor.selfID {
		return
	}
	d.peers[origin] = DiscoverySteady
	d.state = DiscoverySteady

	node, _ := d.monitor.Node(origin)
	for _, eoj := range *list {
		if node != nil && node.HasDevice(eoj) {
			continue
		}
		var device *Device
		if d.monitor.factory != nil {
			device = d.monitor.factory(origin, eoj)
		}
		if device == nil {
			device = NewRemoteDevice(eoj)
		}
		slog.Info("デバイスを発見", "node", origin, "EOJ", eoj)
		d.monitor.AddDevice(origin, device)
		node, _ = d.monitor.Node(origin)
	}
}
