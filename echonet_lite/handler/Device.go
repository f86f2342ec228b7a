package handler

import (
	"echonet-node/echonet_lite"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// DeviceKind はデバイスの振る舞いの種類
type DeviceKind int

const (
	DeviceGeneric DeviceKind = iota // 他ノードのデバイス。観測した値を保持するだけ
	DeviceLocal                     // 自ノードのデバイス。値の正本を持ち要求に応答する
	DeviceProfile                   // 自ノードのノードプロファイル
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceGeneric:
		return "generic"
	case DeviceLocal:
		return "local"
	case DeviceProfile:
		return "profile"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ListenerKey はリスナーの登録キー。送信元のクラスとEPCの組で引く。
type ListenerKey struct {
	ClassCode echonet_lite.EOJClassCode
	EPC       echonet_lite.EPCType
}

// ListenerFunc は受信したプロパティごとに呼ばれる
type ListenerFunc func(nodeID string, seoj echonet_lite.EOJ, device *Device, esv echonet_lite.ESVType, property echonet_lite.Property)

// Device は ECHONET オブジェクトのインスタンス。
// Monitor のイベントループ上でのみ操作すること。
type Device struct {
	EOJ  echonet_lite.EOJ
	Kind DeviceKind

	properties map[echonet_lite.EPCType][]byte
	listeners  map[ListenerKey]ListenerFunc

	announceMap echonet_lite.PropertyMap // 0x9D
	setMap      echonet_lite.PropertyMap // 0x9E
	getMap      echonet_lite.PropertyMap // 0x9F

	onRemove func()
}

// NewRemoteDevice は他ノードのデバイスを作成する
func NewRemoteDevice(eoj echonet_lite.EOJ) *Device {
	return &Device{
		EOJ:        eoj,
		Kind:       DeviceGeneric,
		properties: make(map[echonet_lite.EPCType][]byte),
		listeners:  make(map[ListenerKey]ListenerFunc),
	}
}

func newLocalDevice(eoj echonet_lite.EOJ, kind DeviceKind) *Device {
	d := NewRemoteDevice(eoj)
	d.Kind = kind
	d.announceMap = make(echonet_lite.PropertyMap)
	d.setMap = make(echonet_lite.PropertyMap)
	d.getMap = make(echonet_lite.PropertyMap)
	return d
}

// NewLocalDevice は機器オブジェクトスーパークラスの必須プロパティを持つ自ノードのデバイスを作成する
func NewLocalDevice(eoj echonet_lite.EOJ, manufacturerCode []byte) *Device {
	if len(manufacturerCode) != 3 {
		manufacturerCode = echonet_lite.ExperimentalManufacturerCode
	}
	d := newLocalDevice(eoj, DeviceLocal)
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCOperationStatus, EDT: []byte{echonet_lite.OperationStatusBooting}})
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCInstallationLocation, EDT: []byte{echonet_lite.InstallationLocationNotSpecified}})
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCStandardVersion, EDT: echonet_lite.AppendixRelease})
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCFaultStatus, EDT: []byte{echonet_lite.FaultNotOccurred}})
	d.SetProperty(echonet_lite.Property{EPC: echonet_lite.EPCManufacturerCode, EDT: manufacturerCode})
	d.SetAnnounceMap(echonet_lite.EPCOperationStatus, echonet_lite.EPCInstallationLocation, echonet_lite.EPCFaultStatus)
	d.SetSetMap()
	d.SetGetMap(
		echonet_lite.EPCOperationStatus,
		echonet_lite.EPCInstallationLocation,
		echonet_lite.EPCStandardVersion,
		echonet_lite.EPCFaultStatus,
		echonet_lite.EPCManufacturerCode,
	)
	return d
}

// IsLocal は自ノードのデバイス(プロファイルを含む)かどうか
func (d *Device) IsLocal() bool {
	return d.Kind == DeviceLocal || d.Kind == DeviceProfile
}

func (d *Device) Property(epc echonet_lite.EPCType) (echonet_lite.Property, bool) {
	EDT, ok := d.properties[epc]
	if !ok {
		return echonet_lite.Property{}, false
	}
	return echonet_lite.Property{EPC: epc, EDT: EDT}, true
}

// Properties は保持しているプロパティを EPC 昇順で返す
func (d *Device) Properties() echonet_lite.Properties {
	epcs := make([]echonet_lite.EPCType, 0, len(d.properties))
	for epc := range d.properties {
		epcs = append(epcs, epc)
	}
	slices.Sort(epcs)
	props := make(echonet_lite.Properties, 0, len(epcs))
	for _, epc := range epcs {
		props = append(props, echonet_lite.Property{EPC: epc, EDT: d.properties[epc]})
	}
	return props
}

// SetProperty は値を保存する。値が変化した場合に true を返す。
func (d *Device) SetProperty(p echonet_lite.Property) bool {
	old, ok := d.properties[p.EPC]
	if ok && p.Equal(echonet_lite.Property{EPC: p.EPC, EDT: old}) {
		return false
	}
	EDT := make([]byte, len(p.EDT))
	copy(EDT, p.EDT)
	d.properties[p.EPC] = EDT
	return true
}

// Observe は他ノードから受け取ったプロパティを保存する。EDT が空のものは要求の反映なので無視する。
func (d *Device) Observe(props echonet_lite.Properties) {
	for _, p := range props {
		if len(p.EDT) == 0 {
			continue
		}
		d.SetProperty(p)
	}
}

func (d *Device) AnnounceMap() echonet_lite.PropertyMap { return d.announceMap }
func (d *Device) SetMap() echonet_lite.PropertyMap      { return d.setMap }
func (d *Device) GetMap() echonet_lite.PropertyMap      { return d.getMap }

// SetAnnounceMap は状態変化アナウンスの対象を設定し、0x9D に反映する
func (d *Device) SetAnnounceMap(epcs ...echonet_lite.EPCType) {
	d.announceMap = echonet_lite.NewPropertyMap(epcs...)
	d.updateMaps()
}

// SetSetMap は書き込み可能なプロパティを設定し、0x9E に反映する
func (d *Device) SetSetMap(epcs ...echonet_lite.EPCType) {
	d.setMap = echonet_lite.NewPropertyMap(epcs...)
	d.updateMaps()
}

// SetGetMap は読み出し可能なプロパティを設定し、0x9F に反映する。
// プロパティマップ自身は常に読み出し可能。
func (d *Device) SetGetMap(epcs ...echonet_lite.EPCType) {
	d.getMap = echonet_lite.NewPropertyMap(epcs...)
	d.updateMaps()
}

// AddGettable は読み出し可能なプロパティを追加する
func (d *Device) AddGettable(epcs ...echonet_lite.EPCType) {
	for _, epc := range epcs {
		d.getMap.Set(epc)
	}
	d.updateMaps()
}

func (d *Device) updateMaps() {
	if d.getMap == nil {
		return
	}
	d.getMap.Set(echonet_lite.EPCStatusAnnouncementPropertyMap)
	d.getMap.Set(echonet_lite.EPCSetPropertyMap)
	d.getMap.Set(echonet_lite.EPCGetPropertyMap)
	if d.announceMap != nil {
		d.SetProperty(d.announceMap.Property(echonet_lite.EPCStatusAnnouncementPropertyMap))
	}
	if d.setMap != nil {
		d.SetProperty(d.setMap.Property(echonet_lite.EPCSetPropertyMap))
	}
	d.SetProperty(d.getMap.Property(echonet_lite.EPCGetPropertyMap))
}

// AddListener は自身のクラスと EPC をキーにリスナーを登録する。同じキーは上書きされる。
func (d *Device) AddListener(epc echonet_lite.EPCType, fn ListenerFunc) {
	d.listeners[ListenerKey{ClassCode: d.EOJ.ClassCode(), EPC: epc}] = fn
}

func (d *Device) RemoveListener(epc echonet_lite.EPCType) {
	delete(d.listeners, ListenerKey{ClassCode: d.EOJ.ClassCode(), EPC: epc})
}

func (d *Device) listener(key ListenerKey) (ListenerFunc, bool) {
	fn, ok := d.listeners[key]
	return fn, ok
}

// OnRemove はデバイスがノードから取り除かれたときに呼ばれる関数を設定する
func (d *Device) OnRemove(fn func()) {
	d.onRemove = fn
}

func (d *Device) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "EOJ: %s (%s)", d.EOJ, d.Kind)
	for _, p := range d.Properties() {
		fmt.Fprintf(&sb, ", %s", p.String(d.EOJ.ClassCode()))
	}
	return sb.String()
}
