package protocol

import (
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"strings"
)

// ConvertProperty は Property を PropertyInfo に変換する
func ConvertProperty(property echonet_lite.Property, classCode echonet_lite.EOJClassCode) PropertyInfo {
	propInfo := PropertyInfo{
		EPC: EPCType(property.EPC),
		EDT: ByteArray(property.EDT),
	}
	if name, ok := echonet_lite.PropertyName(classCode, property.EPC); ok {
		propInfo.Name = name
	}
	return propInfo
}

// ConvertPropertyInfoToProperty は PropertyInfo を Property に変換する
func ConvertPropertyInfoToProperty(propInfo PropertyInfo) echonet_lite.Property {
	return echonet_lite.Property{
		EPC: echonet_lite.EPCType(propInfo.EPC),
		EDT: []byte(propInfo.EDT),
	}
}

// className は "0011[Temperature sensor]" からクラス名の部分を取り出す
func className(c echonet_lite.EOJClassCode) string {
	s := c.String()
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		return s[i+1 : len(s)-1]
	}
	return s
}

// ConvertDeviceSnapshot は DeviceSnapshot を DeviceInfo に変換する
func ConvertDeviceSnapshot(d handler.DeviceSnapshot) DeviceInfo {
	classCode := d.EOJ.ClassCode()
	info := DeviceInfo{
		EOJ:        d.EOJ.IDString(),
		Class:      className(classCode),
		Kind:       d.Kind.String(),
		Properties: make([]PropertyInfo, 0, len(d.Properties)),
	}
	for _, p := range d.Properties {
		info.Properties = append(info.Properties, ConvertProperty(p, classCode))
	}
	return info
}

// ConvertNodeSnapshots は ListNodes の結果をクライアントに返す形に変換する
func ConvertNodeSnapshots(nodes []handler.NodeSnapshot) []NodeInfo {
	result := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		info := NodeInfo{
			ID:      n.ID,
			Self:    n.Self,
			Devices: make([]DeviceInfo, 0, len(n.Devices)),
		}
		for _, d := range n.Devices {
			info.Devices = append(info.Devices, ConvertDeviceSnapshot(d))
		}
		result = append(result, info)
	}
	return result
}

// ConvertPropertyEvent は PropertyEvent を通知メッセージに変換する
func ConvertPropertyEvent(ev handler.PropertyEvent) NotificationMessage {
	return NewNotification(EventPropertyChanged, PropertyNotification{
		NodeID:   ev.NodeID,
		EOJ:      ev.EOJ.IDString(),
		ESV:      ev.ESV.String(),
		Property: ConvertProperty(ev.Property, ev.EOJ.ClassCode()),
	})
}

// ConvertDeviceEvent は DeviceEvent を通知メッセージに変換する
func ConvertDeviceEvent(ev handler.DeviceEvent) NotificationMessage {
	var event string
	data := DeviceNotification{NodeID: ev.NodeID}
	switch ev.Type {
	case handler.DeviceAdded:
		event = EventDeviceAdded
		data.EOJ = ev.EOJ.IDString()
	case handler.DeviceRemoved:
		event = EventDeviceRemoved
		data.EOJ = ev.EOJ.IDString()
	default:
		event = EventNodeAdded
	}
	return NewNotification(event, data)
}
