package handler

import (
	"echonet-node/echonet_lite"
	"log/slog"
)

// Deliver は受信メッセージを自ノードのデバイスとリスナーに配送する。
// リスナーへの通知は宛先デバイスの有無に関係なく行う。
func (m *Monitor) Deliver(msg *echonet_lite.ECHONETLiteMessage, origin string) {
	if target := m.findTarget(msg.DEOJ); target != nil {
		m.route(target, msg, origin)
	} else {
		m.metrics.unaddressedMessage()
		slog.Debug("宛先のデバイスがありません", "from", origin, "DEOJ", msg.DEOJ, "ESV", msg.ESV)
	}

	m.observe(msg, origin)
	m.fanOut(msg, origin)
}

// findTarget は DEOJ が指す自ノードのデバイスを探す。
// 完全一致を優先し、無ければ全インスタンス指定でクラスが一致する最初のデバイスを返す。
func (m *Monitor) findTarget(deoj echonet_lite.EOJ) *Device {
	self := m.SelfNode()
	if self == nil {
		return nil
	}
	if d, ok := self.Device(deoj); ok {
		return d
	}
	for _, d := range self.Devices() {
		if deoj.Matches(d.EOJ) {
			return d
		}
	}
	return nil
}

func (m *Monitor) route(target *Device, msg *echonet_lite.ECHONETLiteMessage, origin string) {
	if msg.ESV.IsRequest() {
		m.handleRequest(target, msg, origin)
	}
	if msg.ESV.IsResponse() {
		m.handleResponse(target, msg, origin)
	}
	if msg.ESV.IsError() {
		m.onError(origin, target, msg)
	}
}

// handleResponse は応答をデバイスの種類ごとに処理する
func (m *Monitor) handleResponse(target *Device, msg *echonet_lite.ECHONETLiteMessage, origin string) {
	switch target.Kind {
	case DeviceProfile:
		m.discovery.handleResponse(msg, origin)
	default:
		// 応答はリスナーで受け取る
	}
}

// observe は送信元デバイスが既知なら観測値として保存し、オブザーバーに通知する
func (m *Monitor) observe(msg *echonet_lite.ECHONETLiteMessage, origin string) {
	node, ok := m.nodes[origin]
	if !ok {
		return
	}
	if msg.ESV.IsResponse() || msg.ESV == echonet_lite.ESVINFC {
		if d, ok := node.Device(msg.SEOJ); ok && !d.IsLocal() {
			d.Observe(msg.Properties)
		}
	}
	for _, p := range msg.Properties {
		m.notifyProperty(PropertyEvent{NodeID: origin, EOJ: msg.SEOJ, ESV: msg.ESV, Property: p})
	}
}

// fanOut は送信元ノードの全デバイスから (SEOJのクラス, EPC) に一致するリスナーを呼ぶ
func (m *Monitor) fanOut(msg *echonet_lite.ECHONETLiteMessage, origin string) {
	node, ok := m.nodes[origin]
	if !ok {
		return
	}
	class := msg.SEOJ.ClassCode()
	for _, d := range node.Devices() {
		for _, p := range msg.Properties {
			if fn, ok := d.listener(ListenerKey{ClassCode: class, EPC: p.EPC}); ok {
				fn(origin, msg.SEOJ, d, msg.ESV, p)
			}
		}
	}
}
