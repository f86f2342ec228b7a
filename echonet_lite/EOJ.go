package echonet_lite

import "fmt"

// EOJ は ECHONET オブジェクトの識別子 (クラスグループ, クラス, インスタンス) を 24bit で表します。
type EOJ uint32

type EOJClassCode uint16
type EOJInstanceCode uint8

type ClassGroupCodeType byte
type ClassCodeType byte

const (
	InstanceAll             EOJInstanceCode = 0x00 // 全インスタンス指定
	InstanceProfileNormal   EOJInstanceCode = 0x01 // プロファイル: 一般ノード
	InstanceProfileSendOnly EOJInstanceCode = 0x02 // プロファイル: 送信専用ノード
)

const (
	ClassGroupSensor              ClassGroupCodeType = 0x00
	ClassGroupAirConditioner      ClassGroupCodeType = 0x01
	ClassGroupHousingFacilities   ClassGroupCodeType = 0x02
	ClassGroupCookingHousehold    ClassGroupCodeType = 0x03
	ClassGroupHealth              ClassGroupCodeType = 0x04
	ClassGroupManagementOperation ClassGroupCodeType = 0x05
	ClassGroupProfile             ClassGroupCodeType = 0x0e
)

const (
	TemperatureSensor_ClassCode      EOJClassCode = 0x0011 // 温度センサ
	HomeAirConditioner_ClassCode     EOJClassCode = 0x0130 // 家庭用エアコン
	LVSmartElectricMeter_ClassCode   EOJClassCode = 0x0288 // 低圧スマート電力量メータ
	SingleFunctionLighting_ClassCode EOJClassCode = 0x0291 // 単機能照明
	Controller_ClassCode             EOJClassCode = 0x05ff // コントローラ
	NodeProfile_ClassCode            EOJClassCode = 0x0ef0 // ノードプロファイル
)

// NodeProfileObject は一般ノードのノードプロファイルオブジェクト
var NodeProfileObject = MakeEOJ(NodeProfile_ClassCode, InstanceProfileNormal)

func (e EOJ) ClassCode() EOJClassCode {
	return EOJClassCode(e >> 8 & 0xffff)
}
func (e EOJ) InstanceCode() EOJInstanceCode {
	return EOJInstanceCode(e)
}
func (e EOJ) ClassGroupCode() ClassGroupCodeType {
	return e.ClassCode().ClassGroupCode()
}

func (c EOJClassCode) ClassGroupCode() ClassGroupCodeType {
	return ClassGroupCodeType(c >> 8)
}
func (c EOJClassCode) ClassCode() ClassCodeType {
	return ClassCodeType(c)
}
func (c EOJClassCode) Encode() []byte {
	return []byte{byte(c >> 8), byte(c)}
}

func MakeEOJClassCode(classGroupCode ClassGroupCodeType, classCode ClassCodeType) EOJClassCode {
	return EOJClassCode(uint16(classGroupCode)<<8 | uint16(classCode))
}
func MakeEOJ(classCode EOJClassCode, instanceCode EOJInstanceCode) EOJ {
	return EOJ(uint32(classCode)<<8 | uint32(instanceCode))
}

// NewEOJ はクラスグループ・クラス・インスタンスの3つのコードから EOJ を作成します。
func NewEOJ(group ClassGroupCodeType, class ClassCodeType, instance EOJInstanceCode) EOJ {
	return MakeEOJ(MakeEOJClassCode(group, class), instance)
}

func DecodeEOJ(data []byte) EOJ {
	if len(data) != 3 {
		return 0
	}
	return EOJ(uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2]))
}
func (e EOJ) Encode() []byte {
	return []byte{byte(e >> 16), byte(e >> 8), byte(e)}
}

func (e EOJ) IsClassGroup(group ClassGroupCodeType) bool {
	return e.ClassGroupCode() == group
}

func (e EOJ) IsClass(class ClassCodeType) bool {
	return e.ClassCode().ClassCode() == class
}

// IsAllInstance はインスタンスコードが全インスタンス指定(0x00)かどうかを返す
func (e EOJ) IsAllInstance() bool {
	return e.InstanceCode() == InstanceAll
}

// IsProfile はプロファイルクラス(0x0EF0)のオブジェクトかどうかを返す
func (e EOJ) IsProfile() bool {
	return e.ClassCode() == NodeProfile_ClassCode
}

// Matches は宛先 e が target を指しているかを判定します。
// 完全一致、または e が全インスタンス指定でクラスグループとクラスが一致する場合に true。
func (e EOJ) Matches(target EOJ) bool {
	if e == target {
		return true
	}
	return e.IsAllInstance() &&
		target.IsClassGroup(e.ClassGroupCode()) &&
		target.IsClass(e.ClassCode().ClassCode())
}

func (c EOJClassCode) String() string {
	var s string
	switch c {
	case TemperatureSensor_ClassCode:
		s = "Temperature sensor"
	case HomeAirConditioner_ClassCode:
		s = "Home air conditioner"
	case LVSmartElectricMeter_ClassCode:
		s = "Low-voltage smart electric energy meter"
	case SingleFunctionLighting_ClassCode:
		// 単機能照明
		s = "Single-function lighting"
	case Controller_ClassCode:
		s = "Controller"
	case NodeProfile_ClassCode:
		s = "Node profile"

	default:
		switch c.ClassGroupCode() {
		case ClassGroupSensor:
			s = "Sensor-related device"
		case ClassGroupAirConditioner:
			s = "Air conditioner-related device"
		case ClassGroupHousingFacilities:
			s = "Housing/facility-related device"
		case ClassGroupCookingHousehold:
			s = "Cooking/housework-related device"
		case ClassGroupHealth:
			s = "Health-related device"
		case ClassGroupManagementOperation:
			s = "Management/control-related device"
		case ClassGroupProfile:
			s = "Profile"
		default:
			s = "?"
		}
	}
	return fmt.Sprintf("%04X[%s]", uint16(c), s)
}

func (e EOJ) String() string {
	return fmt.Sprintf("%s:%v", e.ClassCode(), e.InstanceCode())
}

// IDString はノードのデバイスマップのキーとして使う6桁の16進表記
func (e EOJ) IDString() string {
	return fmt.Sprintf("%06X", uint32(e))
}
