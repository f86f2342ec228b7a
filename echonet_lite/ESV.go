package echonet_lite

import "fmt"

type ESVType byte

func (e ESVType) Encode() []byte {
	return []byte{byte(e)}
}

const (
	ESVSetI    ESVType = 0x60 // SetI プロパティ値書き込み要求（応答不要）
	ESVSetC    ESVType = 0x61 // SetC プロパティ値書き込み要求（応答要）
	ESVGet     ESVType = 0x62 // Get プロパティ値読み出し要求
	ESVINF_REQ ESVType = 0x63 // INF_REQ プロパティ値通知要求
	ESVSetGet  ESVType = 0x6e // SetGet プロパティ値書き込み・読み出し要求

	ESVSet_Res    ESVType = 0x71 // Set_Res プロパティ値書き込み応答
	ESVGet_Res    ESVType = 0x72 // Get_Res プロパティ値読み出し応答
	ESVINF        ESVType = 0x73 // INF プロパティ値通知
	ESVINFC       ESVType = 0x74 // INFC プロパティ値通知（応答要）
	ESVINFC_Res   ESVType = 0x7a // INFC_Res プロパティ値通知応答
	ESVSetGet_Res ESVType = 0x7e // SetGet_Res プロパティ値書き込み・読み出し応答

	ESVSetI_SNA   ESVType = 0x50 // SetI_SNA プロパティ値書き込み要求不可応答
	ESVSetC_SNA   ESVType = 0x51 // SetC_SNA プロパティ値書き込み要求不可応答
	ESVGet_SNA    ESVType = 0x52 // Get_SNA プロパティ値読み出し要求不可応答
	ESVINF_SNA    ESVType = 0x53 // INF_SNA プロパティ値通知不可応答
	ESVSetGet_SNA ESVType = 0x5e // SetGet_SNA プロパティ値書き込み・読み出し要求不可応答
)

func (e ESVType) String() string {
	switch e {
	case ESVSetI:
		return "SetI"
	case ESVSetC:
		return "SetC"
	case ESVGet:
		return "Get"
	case ESVINF_REQ:
		return "INF_REQ"
	case ESVSetGet:
		return "SetGet"
	case ESVINF:
		return "INF"
	case ESVINFC:
		return "INFC"
	case ESVINFC_Res:
		return "INFC_Res"
	case ESVSet_Res:
		return "Set_Res"
	case ESVGet_Res:
		return "Get_Res"
	case ESVSetGet_Res:
		return "SetGet_Res"
	case ESVSetI_SNA:
		return "SetI_SNA"
	case ESVSetC_SNA:
		return "SetC_SNA"
	case ESVGet_SNA:
		return "Get_SNA"
	case ESVINF_SNA:
		return "INF_SNA"
	case ESVSetGet_SNA:
		return "SetGet_SNA"

	default:
		return fmt.Sprintf("(%X)", byte(e))
	}
}

// IsRequest は要求系のESVかどうかを返す。INF は通知として要求側にも含まれる。
// INFC は INFC_Res を返す必要があるので要求として扱う。
func (e ESVType) IsRequest() bool {
	switch e {
	case ESVSetI, ESVSetC, ESVGet, ESVINF_REQ, ESVSetGet, ESVINF, ESVINFC:
		return true
	}
	return false
}

// IsResponse は応答系のESVかどうかを返す。INF は要求なしの通知として応答側にも含まれる。
func (e ESVType) IsResponse() bool {
	switch e {
	case ESVSet_Res, ESVGet_Res, ESVINF, ESVINFC_Res, ESVSetGet_Res:
		return true
	}
	return false
}

// IsError は不可応答(SNA)かどうかを返す
func (e ESVType) IsError() bool {
	switch e {
	case ESVSetI_SNA, ESVSetC_SNA, ESVGet_SNA, ESVINF_SNA, ESVSetGet_SNA:
		return true
	}
	return false
}

// ResponseESV は要求に対する正常応答のESVを返す。応答を返さない要求は false。
//
//	SetC -> Set_Res, Get -> Get_Res, INF_REQ -> INF, INFC -> INFC_Res, SetGet -> SetGet_Res
func (e ESVType) ResponseESV() (ESVType, bool) {
	switch e {
	case ESVSetC:
		return ESVSet_Res, true
	case ESVGet:
		return ESVGet_Res, true
	case ESVINF_REQ:
		return ESVINF, true
	case ESVINFC:
		return ESVINFC_Res, true
	case ESVSetGet:
		return ESVSetGet_Res, true
	}
	return 0, false
}

// SNAESV は要求に対する不可応答のESVを返す
func (e ESVType) SNAESV() (ESVType, bool) {
	switch e {
	case ESVSetI:
		return ESVSetI_SNA, true
	case ESVSetC:
		return ESVSetC_SNA, true
	case ESVGet:
		return ESVGet_SNA, true
	case ESVINF_REQ:
		return ESVINF_SNA, true
	case ESVSetGet:
		return ESVSetGet_SNA, true
	}
	return 0, false
}
