package echonet_lite

import (
	"errors"
	"fmt"
	"strings"
)

// ECHONET Lite 資料
// https://echonet.jp/spec_g/
//  https://echonet.jp/spec_v114_lite/ (ECHONET Lite)
//  https://echonet.jp/spec_object_rr2/ (ECHONET Liteオブジェクト)

// ECHONETLiteMessage はECHONET Liteのメッセージを表します。
// OPC は保持せず、エンコード時に Properties の長さから求めます。
type ECHONETLiteMessage struct {
	EHD        EHDType    // ヘッダ
	TID        TIDType    // トランザクションID
	SEOJ       EOJ        // 送信元ECHONETオブジェクト
	DEOJ       EOJ        // 宛先ECHONETオブジェクト
	ESV        ESVType    // サービスコード
	Properties Properties // プロパティリスト
}

const (
	EHD1_ECHONETLite byte = 0x10 // EHD1: ECHONET Lite
	EHD2_Format1     byte = 0x81 // EHD2: 規定電文形式

	EHD_ECHONETLite EHDType = 0x1081 // ECHONET Liteのヘッダ

	ECHONETLitePort = 3610 // ECHONET Liteのポート番号

	// CommonHeaderLength は EHD(2)+TID(2)+SEOJ(3)+DEOJ(3)+ESV(1)+OPC(1)
	CommonHeaderLength = 12

	MaxProperties = 255 // OPC の上限
	MaxEDTLength  = 255 // PDC の上限
)

var (
	ErrFrameTooShort         = errors.New("frame shorter than common header")
	ErrUnknownFormat         = errors.New("not an ECHONET Lite format 1 frame")
	ErrTruncatedProperty     = errors.New("property record exceeds frame")
	ErrPropertyCountMismatch = errors.New("OPC does not match number of properties")
	ErrTooManyProperties     = errors.New("too many properties")
	ErrEDTTooLong            = errors.New("EDT too long")
)

// DecodeError はパース失敗の詳細を表します。Err は上記のいずれかの sentinel です。
type DecodeError struct {
	Offset int
	Err    error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode error at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("decode error at offset %d: %v (%s)", e.Offset, e.Err, e.Detail)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type EHDType uint16

func DecodeEHD(data []byte) EHDType {
	if len(data) < 2 {
		return 0
	}
	return EHDType(data[0])<<8 + EHDType(data[1])
}
func (e EHDType) Encode() []byte {
	return []byte{byte(e >> 8), byte(e & 0xff)}
}

func (e EHDType) String() string {
	switch e {
	case EHD_ECHONETLite:
		return "ECHONET Lite"
	default:
		return fmt.Sprintf("(%X)", uint16(e))
	}
}

type TIDType uint16

func DecodeTID(data []byte) TIDType {
	if len(data) < 2 {
		return 0
	}
	return TIDType(data[0])<<8 + TIDType(data[1])
}
func (t TIDType) Encode() []byte {
	return []byte{byte(t >> 8), byte(t & 0xff)}
}

func (t TIDType) String() string {
	return fmt.Sprintf("%#04x", uint16(t))
}

// OPC はワイヤ上の処理対象プロパティカウンタ
func (m *ECHONETLiteMessage) OPC() int {
	return len(m.Properties)
}

func (m *ECHONETLiteMessage) String() string {
	parts := []string{
		fmt.Sprintf("TID:%v", m.TID),
		fmt.Sprintf("SEOJ:%v", m.SEOJ),
		fmt.Sprintf("DEOJ:%v", m.DEOJ),
		fmt.Sprintf("ESV:%v", m.ESV),
		fmt.Sprintf("OPC:%d", m.OPC()),
		fmt.Sprintf("Properties:%v", m.Properties.String(m.SEOJ.ClassCode())),
	}
	return strings.Join(parts, ", ")
}

// Validate はワイヤ形式で表現できないメッセージを検出します。
func (m *ECHONETLiteMessage) Validate() error {
	if len(m.Properties) > MaxProperties {
		return fmt.Errorf("%w: %d", ErrTooManyProperties, len(m.Properties))
	}
	for _, p := range m.Properties {
		if len(p.EDT) > MaxEDTLength {
			return fmt.Errorf("%w: EPC %v has %d bytes", ErrEDTTooLong, p.EPC, len(p.EDT))
		}
	}
	return nil
}

func parseProperties(data []byte, pos int) ([]Property, error) {
	var properties []Property
	for pos < len(data) {
		if pos+2 > len(data) {
			return nil, &DecodeError{Offset: pos, Err: ErrTruncatedProperty, Detail: "missing PDC"}
		}
		prop := Property{
			EPC: EPCType(data[pos]),
		}
		PDC := int(data[pos+1])
		pos += 2
		if PDC > 0 {
			if pos+PDC > len(data) {
				return nil, &DecodeError{
					Offset: pos,
					Err:    ErrTruncatedProperty,
					Detail: fmt.Sprintf("EPC %v claims %d bytes, %d remain", prop.EPC, PDC, len(data)-pos),
				}
			}
			prop.EDT = make([]byte, PDC)
			copy(prop.EDT, data[pos:pos+PDC])
			pos += PDC
		}
		properties = append(properties, prop)
	}
	return properties, nil
}

// ParseECHONETLiteMessage は受信したバイト列からECHONET Liteメッセージをパースします。
// プロパティはバッファが尽きるまで読み込み、宣言された OPC と一致しなければエラーとします。
func ParseECHONETLiteMessage(data []byte) (*ECHONETLiteMessage, error) {
	if len(data) < CommonHeaderLength {
		return nil, &DecodeError{Offset: len(data), Err: ErrFrameTooShort, Detail: fmt.Sprintf("%d bytes", len(data))}
	}
	if data[0] != EHD1_ECHONETLite || data[1] != EHD2_Format1 {
		return nil, &DecodeError{Offset: 0, Err: ErrUnknownFormat, Detail: fmt.Sprintf("EHD %02X%02X", data[0], data[1])}
	}

	msg := &ECHONETLiteMessage{
		EHD:  DecodeEHD(data[0:2]),
		TID:  DecodeTID(data[2:4]),
		SEOJ: DecodeEOJ(data[4:7]),
		DEOJ: DecodeEOJ(data[7:10]),
		ESV:  ESVType(data[10]),
	}
	OPC := int(data[11])
	properties, err := parseProperties(data, CommonHeaderLength)
	if err != nil {
		return nil, err
	}
	if len(properties) != OPC {
		return nil, &DecodeError{
			Offset: len(data),
			Err:    ErrPropertyCountMismatch,
			Detail: fmt.Sprintf("OPC %d, parsed %d", OPC, len(properties)),
		}
	}
	msg.Properties = properties
	return msg, nil
}

type IEncodable interface {
	Encode() []byte
}

func encode(encodables ...IEncodable) []byte {
	size := 0
	chunks := make([][]byte, len(encodables))
	for i, encodable := range encodables {
		chunks[i] = encodable.Encode()
		size += len(chunks[i])
	}
	result := make([]byte, 0, size)
	for _, chunk := range chunks {
		result = append(result, chunk...)
	}
	return result
}

// Encode はメッセージをワイヤ形式に変換します。OPC は常に Properties の長さです。
// 表現できない値は Validate で事前に検出してください。
func (m *ECHONETLiteMessage) Encode() []byte {
	EHD := m.EHD
	if EHD == 0 {
		EHD = EHD_ECHONETLite
	}
	return encode(EHD, m.TID, m.SEOJ, m.DEOJ, m.ESV, m.Properties)
}
