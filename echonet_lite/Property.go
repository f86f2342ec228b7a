package echonet_lite

import (
	"bytes"
	"echonet-node/echonet_lite/utils"
	"fmt"
	"strings"
)

// Property は各プロパティ（EPC, PDC, EDT）を表します。
// PDC は保持せず常に len(EDT) です。空の EDT は nil で表し、デコード結果も PDC が 0 なら nil になります。
// プロパティが一つも無いメッセージの Properties も nil です。
type Property struct {
	EPC EPCType // プロパティコード
	EDT []byte  // プロパティデータ
}
type Properties []Property

// PDC はワイヤ上のEDTのバイト数
func (p Property) PDC() int {
	return len(p.EDT)
}

func (p Property) Encode() []byte {
	PDC := len(p.EDT)
	data := make([]byte, 2+PDC)
	data[0] = byte(p.EPC)
	data[1] = byte(PDC)
	copy(data[2:], p.EDT)
	return data
}

// Equal は EPC と EDT が等しいかどうかを返す。nil と空の EDT は等しいものとみなす。
func (p Property) Equal(other Property) bool {
	return p.EPC == other.EPC && bytes.Equal(p.EDT, other.EDT)
}

func (ps Properties) Encode() []byte {
	data := make([][]byte, len(ps)+1)
	data[0] = []byte{byte(len(ps))}
	for i, p := range ps {
		data[i+1] = p.Encode()
	}
	return utils.FlattenBytes(data)
}

// EPCType はプロパティコードを表します。
// プロパティコードは、Echonet Lite のプロパティを識別するための 1 バイトの値です。
type EPCType byte

func (e EPCType) String() string {
	return fmt.Sprintf("%02X", byte(e))
}

func (e EPCType) StringForClass(c EOJClassCode) string {
	if name, ok := PropertyName(c, e); ok {
		return fmt.Sprintf("%s(%s)", e.String(), name)
	}
	return e.String()
}

func (p Property) EDTString() string {
	if p.EDT == nil {
		return "nil"
	}
	return fmt.Sprintf("%X", p.EDT)
}

func (p Property) String(c EOJClassCode) string {
	return fmt.Sprintf("%s:%s", p.EPC.StringForClass(c), p.EDTString())
}

func (ps Properties) String(classCode EOJClassCode) string {
	results := make([]string, 0, len(ps))
	for _, p := range ps {
		results = append(results, p.String(classCode))
	}
	return fmt.Sprintf("[%s]", strings.Join(results, " "))
}

func (ps Properties) FindEPC(epc EPCType) (Property, bool) {
	for _, p := range ps {
		if p.EPC == epc {
			return p, true
		}
	}
	return Property{}, false
}

// EPCs はプロパティコードのみを要求順に返す
func (ps Properties) EPCs() []EPCType {
	epcs := make([]EPCType, 0, len(ps))
	for _, p := range ps {
		epcs = append(epcs, p.EPC)
	}
	return epcs
}

// RequestProperties は Get 要求用に EDT なしのプロパティ列を作る
func RequestProperties(epcs ...EPCType) Properties {
	props := make(Properties, 0, len(epcs))
	for _, epc := range epcs {
		props = append(props, Property{EPC: epc})
	}
	return props
}
