package echonet_lite

import (
	"echonet-node/echonet_lite/utils"
	"fmt"

	"golang.org/x/exp/slices"
)

const (
	// EPC
	EPC_NPO_VersionInfo              EPCType = 0x82
	EPC_NPO_IDNumber                 EPCType = 0x83
	EPC_NPO_SelfNodeInstances        EPCType = 0xd3
	EPC_NPO_SelfNodeClasses          EPCType = 0xd4
	EPC_NPO_InstanceListNotification EPCType = 0xd5
	EPC_NPO_SelfNodeInstanceListS    EPCType = 0xd6
	EPC_NPO_SelfNodeClassListS       EPCType = 0xd7
)

// ECHONETLite_Version はノードプロファイルの Version 情報 (Ver.1.12, 規定電文形式)
var ECHONETLite_Version = NPO_VersionInfo{
	MajorVersion: 1,
	MinorVersion: 12,
	Default:      true,
}

type NPO_VersionInfo struct {
	MajorVersion byte
	MinorVersion byte
	Default      bool // 既定電文
	Optional     bool // 任意電文
}

func NPO_DecodeVersionInfo(EDT []byte) *NPO_VersionInfo {
	if len(EDT) < 3 {
		return nil
	}
	return &NPO_VersionInfo{
		MajorVersion: EDT[0],
		MinorVersion: EDT[1],
		Default:      EDT[2]&0x01 != 0,
		Optional:     EDT[2]&0x02 != 0,
	}
}

func (s *NPO_VersionInfo) String() string {
	return fmt.Sprintf("%d.%d Default:%t, Optional:%t",
		s.MajorVersion, s.MinorVersion,
		s.Default, s.Optional,
	)
}

func (s *NPO_VersionInfo) Property() *Property {
	var format byte
	if s.Default {
		format |= 0x01
	}
	if s.Optional {
		format |= 0x02
	}
	return &Property{EPC_NPO_VersionInfo, []byte{s.MajorVersion, s.MinorVersion, format, 0x00}}
}

// IdentificationNumber は識別番号 (0xFE + メーカコード3バイト + 固有ID13バイト)
type IdentificationNumber struct {
	ManufacturerCode []byte
	UniqueIdentifier []byte
}

func (id IdentificationNumber) Property() *Property {
	EDT := make([]byte, 0, 17)
	EDT = append(EDT, 0xfe)
	EDT = append(EDT, id.ManufacturerCode...)
	unique := make([]byte, 13)
	copy(unique, id.UniqueIdentifier)
	EDT = append(EDT, unique...)
	return &Property{EPCIdentificationNumber, EDT}
}

// InstanceList は「個数 + EOJ(3バイト)×個数」形式のインスタンスリスト
type InstanceList []EOJ

// DecodeInstanceList はインスタンスリストをデコードする。
// 宣言された個数分のEOJがEDTに含まれていない場合は nil を返す。
func DecodeInstanceList(EDT []byte) *InstanceList {
	if len(EDT) < 1 {
		return nil
	}
	result := InstanceList{}
	instances := int(EDT[0])
	if len(EDT) < 1+instances*3 {
		return nil
	}
	for i := 0; i < instances; i++ {
		eoj := DecodeEOJ(EDT[1+i*3 : 1+i*3+3])
		result = append(result, eoj)
	}
	return &result
}

func (s *InstanceList) String() string {
	if s == nil {
		return "nil"
	}
	return fmt.Sprintf("%d:%v", len(*s), *s)
}

func (s *InstanceList) EDT() []byte {
	if s == nil {
		return nil
	}
	EDT := make([]byte, 1, 1+len(*s)*3)
	EDT[0] = byte(len(*s))
	for _, eoj := range *s {
		EDT = append(EDT, eoj.Encode()...)
	}
	return EDT
}

type InstanceListNotification InstanceList

func (s *InstanceListNotification) Property() *Property {
	if s == nil {
		return nil
	}
	return &Property{EPC_NPO_InstanceListNotification, (*InstanceList)(s).EDT()}
}

type SelfNodeInstanceListS InstanceList

func (s *SelfNodeInstanceListS) Property() *Property {
	if s == nil {
		return nil
	}
	return &Property{EPC_NPO_SelfNodeInstanceListS, (*InstanceList)(s).EDT()}
}

// SelfNodeClassListS は「個数 + クラスコード(2バイト)×個数」形式のクラスリスト
type SelfNodeClassListS []EOJClassCode

func (s SelfNodeClassListS) Property() *Property {
	EDT := make([]byte, 1, 1+len(s)*2)
	EDT[0] = byte(len(s))
	for _, c := range s {
		EDT = append(EDT, c.Encode()...)
	}
	return &Property{EPC_NPO_SelfNodeClassListS, EDT}
}

// NodeInventory はノード内のデバイス構成から導出されるプロファイルの集計値
type NodeInventory struct {
	Instances               InstanceList   // プロファイルを含む全インスタンス
	InstancesWithoutProfile InstanceList   // プロファイルを除くインスタンス
	Classes                 []EOJClassCode // プロファイルを含むクラス
}

// NewNodeInventory は EOJ の集合からインベントリを作成する。各リストは昇順に並ぶ。
func NewNodeInventory(eojs []EOJ) NodeInventory {
	var inv NodeInventory
	seenEOJ := make(map[EOJ]struct{})
	seenClass := make(map[EOJClassCode]struct{})
	for _, eoj := range eojs {
		if _, ok := seenEOJ[eoj]; ok {
			continue
		}
		seenEOJ[eoj] = struct{}{}
		inv.Instances = append(inv.Instances, eoj)
		if !eoj.IsProfile() {
			inv.InstancesWithoutProfile = append(inv.InstancesWithoutProfile, eoj)
		}
		if _, ok := seenClass[eoj.ClassCode()]; !ok {
			seenClass[eoj.ClassCode()] = struct{}{}
			inv.Classes = append(inv.Classes, eoj.ClassCode())
		}
	}
	slices.Sort(inv.Instances)
	slices.Sort(inv.InstancesWithoutProfile)
	slices.Sort(inv.Classes)
	return inv
}

// Properties はインベントリを 0xD3〜0xD7 のプロパティに変換する
func (inv NodeInventory) Properties() Properties {
	withoutProfile := InstanceListNotification(inv.InstancesWithoutProfile)
	all := SelfNodeInstanceListS(inv.Instances)
	return Properties{
		{EPC_NPO_SelfNodeInstances, utils.Uint32ToBytes(uint32(len(inv.InstancesWithoutProfile)), 3)},
		{EPC_NPO_SelfNodeClasses, utils.Uint32ToBytes(uint32(len(inv.Classes)), 2)},
		*withoutProfile.Property(),
		*all.Property(),
		*SelfNodeClassListS(inv.Classes).Property(),
	}
}
