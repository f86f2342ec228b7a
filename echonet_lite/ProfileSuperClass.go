package echonet_lite

// 機器オブジェクトスーパークラス / プロファイルオブジェクトスーパークラス 共通のEPC
const (
	EPCOperationStatus               EPCType = 0x80 // 動作状態
	EPCInstallationLocation          EPCType = 0x81 // 設置場所
	EPCStandardVersion               EPCType = 0x82 // 規格Version情報
	EPCIdentificationNumber          EPCType = 0x83 // 識別番号
	EPCFaultStatus                   EPCType = 0x88 // 異常発生状態
	EPCManufacturerCode              EPCType = 0x8a // メーカコード
	EPCStatusAnnouncementPropertyMap EPCType = 0x9d // 状態アナウンスプロパティマップ
	EPCSetPropertyMap                EPCType = 0x9e // Set プロパティマップ
	EPCGetPropertyMap                EPCType = 0x9f // Get プロパティマップ
)

const (
	OperationStatusBooting    byte = 0x30 // 動作状態: 起動中
	OperationStatusNotBooting byte = 0x31 // 動作状態: 未起動

	InstallationLocationNotSpecified byte = 0x00

	FaultOccurred    byte = 0x41
	FaultNotOccurred byte = 0x42
)

var (
	// AppendixRelease は機器オブジェクトの規格Version情報 (APPENDIX Release H)
	AppendixRelease = []byte{0x00, 0x00, 'H', 0x00}

	// ExperimentalManufacturerCode は試験用のメーカコード
	ExperimentalManufacturerCode = []byte{0xff, 0xff, 0xff}
)

var superClassPropertyNames = map[EPCType]string{
	EPCOperationStatus:               "Operation status",
	EPCInstallationLocation:          "Installation location",
	EPCStandardVersion:               "Standard version information",
	EPCIdentificationNumber:          "Identification number",
	EPCFaultStatus:                   "Fault occurrence status",
	EPCManufacturerCode:              "Manufacturer code",
	EPCStatusAnnouncementPropertyMap: "Status change announcement property map",
	EPCSetPropertyMap:                "Set property map",
	EPCGetPropertyMap:                "Get property map",
}

var classPropertyNames = map[EOJClassCode]map[EPCType]string{
	NodeProfile_ClassCode: {
		EPC_NPO_VersionInfo:              "Version information",
		EPC_NPO_SelfNodeInstances:        "Self-node instances number",
		EPC_NPO_SelfNodeClasses:          "Self-node classes number",
		EPC_NPO_InstanceListNotification: "Instance list notification",
		EPC_NPO_SelfNodeInstanceListS:    "Self-node instance list S",
		EPC_NPO_SelfNodeClassListS:       "Self-node class list S",
	},
	TemperatureSensor_ClassCode: {
		EPC_TS_MeasuredTemperature: "Measured temperature",
	},
}

// PropertyName はクラスごとのプロパティ名を返す。クラス固有の名前がなければスーパークラスの名前を使う。
func PropertyName(c EOJClassCode, epc EPCType) (string, bool) {
	if names, ok := classPropertyNames[c]; ok {
		if name, ok := names[epc]; ok {
			return name, true
		}
	}
	name, ok := superClassPropertyNames[epc]
	return name, ok
}
