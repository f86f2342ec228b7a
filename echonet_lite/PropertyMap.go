package echonet_lite

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// プロパティマップ記述形式
// プロパティマップは EPC(0x80〜0xff) の有無の集合。
//
// 1. プロパティの個数が16未満の場合 (1+個数 バイト)
//   1バイト目: プロパティの個数
//   2バイト目以降: EPC を昇順に列挙
//
// 2. プロパティの個数が16以上の場合 (17バイト)
//   1バイト目: プロパティの個数
//   2〜17バイト目: ビットマップ。EPC の下位4ビットがバイト位置、上位4ビット-8がビット位置

const propertyMapListLimit = 16

type PropertyMap map[EPCType]struct{}

// NewPropertyMap は指定した EPC を含むプロパティマップを作る
func NewPropertyMap(epcs ...EPCType) PropertyMap {
	m := make(PropertyMap, len(epcs))
	for _, epc := range epcs {
		m.Set(epc)
	}
	return m
}

func (m PropertyMap) Has(epc EPCType) bool {
	_, ok := m[epc]
	return ok
}

func (m PropertyMap) Set(epc EPCType) {
	m[epc] = struct{}{}
}

func (m PropertyMap) Delete(epc EPCType) {
	delete(m, epc)
}

// EPCs は昇順に並んだ EPC を返す
func (m PropertyMap) EPCs() []EPCType {
	epcs := make([]EPCType, 0, len(m))
	for epc := range m {
		epcs = append(epcs, epc)
	}
	slices.Sort(epcs)
	return epcs
}

type ErrInvalidPropertyMap struct {
	EDT []byte
}

func (e ErrInvalidPropertyMap) Error() string {
	return fmt.Sprintf("invalid property map: %X", e.EDT)
}

// Encode はプロパティマップ記述形式に変換する。0x80 未満の EPC はビットマップ形式では表現できないため無視される。
func (m PropertyMap) Encode() []byte {
	epcs := m.EPCs()
	if len(epcs) < propertyMapListLimit {
		bytes := make([]byte, 1, 1+len(epcs))
		bytes[0] = byte(len(epcs))
		for _, epc := range epcs {
			bytes = append(bytes, byte(epc))
		}
		return bytes
	}

	bytes := make([]byte, 17)
	count := 0
	for _, epc := range epcs {
		if epc < 0x80 {
			continue
		}
		bytes[epc&0x0f+1] |= 1 << (epc>>4 - 8)
		count++
	}
	bytes[0] = byte(count)
	return bytes
}

func (m PropertyMap) Property(epc EPCType) Property {
	return Property{EPC: epc, EDT: m.Encode()}
}

// DecodePropertyMap はプロパティマップ記述形式をデコードする
func DecodePropertyMap(bytes []byte) (PropertyMap, error) {
	m := make(PropertyMap)
	if len(bytes) < 1 {
		return nil, ErrInvalidPropertyMap{EDT: bytes}
	}

	n := int(bytes[0])
	if n < propertyMapListLimit {
		if len(bytes) != n+1 {
			return nil, ErrInvalidPropertyMap{EDT: bytes}
		}
		for _, epc := range bytes[1:] {
			m.Set(EPCType(epc))
		}
		return m, nil
	}

	if len(bytes) != 17 {
		return nil, ErrInvalidPropertyMap{EDT: bytes}
	}
	for i, b := range bytes[1:] {
		for j := 0; j < 8; j++ {
			if b&(1<<j) != 0 {
				m.Set(EPCType(i + j<<4 + 0x80))
			}
		}
	}
	return m, nil
}

func (m PropertyMap) String() string {
	return fmt.Sprint(m.EPCs())
}
