package handler

import (
	"echonet-node/echonet_lite"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Node はネットワーク上のノード。ID はトランスポートのアドレス文字列。
type Node struct {
	ID      string
	devices map[echonet_lite.EOJ]*Device
}

func NewNode(id string, devices ...*Device) *Node {
	n := &Node{
		ID:      id,
		devices: make(map[echonet_lite.EOJ]*Device, len(devices)),
	}
	for _, d := range devices {
		n.AddDevice(d)
	}
	return n
}

// Profile はノードプロファイルクラスのデバイスを返す
func (n *Node) Profile() *Device {
	for _, d := range n.Devices() {
		if d.EOJ.IsProfile() {
			return d
		}
	}
	return nil
}

// AddDevice はデバイスを追加する。同じ EOJ のデバイスは置き換える。
func (n *Node) AddDevice(d *Device) {
	n.devices[d.EOJ] = d
}

func (n *Node) Device(eoj echonet_lite.EOJ) (*Device, bool) {
	d, ok := n.devices[eoj]
	return d, ok
}

func (n *Node) HasDevice(eoj echonet_lite.EOJ) bool {
	_, ok := n.devices[eoj]
	return ok
}

func (n *Node) RemoveDevice(eoj echonet_lite.EOJ) (*Device, bool) {
	d, ok := n.devices[eoj]
	if !ok {
		return nil, false
	}
	delete(n.devices, eoj)
	return d, true
}

// Devices は EOJ 昇順のデバイス一覧
func (n *Node) Devices() []*Device {
	devices := make([]*Device, 0, len(n.devices))
	for _, d := range n.devices {
		devices = append(devices, d)
	}
	slices.SortFunc(devices, func(a, b *Device) int {
		return int(a.EOJ) - int(b.EOJ)
	})
	return devices
}

func (n *Node) EOJs() []echonet_lite.EOJ {
	devices := n.Devices()
	eojs := make([]echonet_lite.EOJ, 0, len(devices))
	for _, d := range devices {
		eojs = append(eojs, d.EOJ)
	}
	return eojs
}

func (n *Node) Len() int {
	return len(n.devices)
}

func (n *Node) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Node ID: %s", n.ID)
	for _, d := range n.Devices() {
		fmt.Fprintf(&sb, "\n  %s", d)
	}
	return sb.String()
}
