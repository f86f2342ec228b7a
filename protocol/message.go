package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// メッセージ種別
const (
	MessageTypeCommand      = "command"
	MessageTypeResponse     = "response"
	MessageTypeNotification = "notification"
)

// 通知イベント
const (
	EventPropertyChanged = "propertyChanged"
	EventDeviceAdded     = "deviceAdded"
	EventDeviceRemoved   = "deviceRemoved"
	EventNodeAdded       = "nodeAdded"
	EventLog             = "log"
)

// メッセージの共通部分
type Message struct {
	Type string `json:"type"`         // "command", "response", "notification"のいずれか
	ID   string `json:"id,omitempty"` // メッセージ識別子（コマンドとレスポンスの関連付け用）
}

// コマンドメッセージ
type CommandMessage struct {
	Message
	Command string `json:"command"` // コマンド名: "search", "list_nodes", "shutdown"
}

// レスポンスメッセージ
type ResponseMessage struct {
	Message
	Success bool        `json:"success"`         // 成功/失敗のフラグ
	Data    interface{} `json:"data,omitempty"`  // レスポンスデータ
	Error   string      `json:"error,omitempty"` // エラーメッセージ（失敗時）
}

// 通知メッセージ
type NotificationMessage struct {
	Message
	Event string      `json:"event"` // イベント種別: "propertyChanged", "deviceAdded", etc.
	Data  interface{} `json:"data"`  // イベントの内容
}

// ParseCommand はクライアントから受け取ったコマンドメッセージを解析する
func ParseCommand(data []byte) (*CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type != MessageTypeCommand {
		return nil, fmt.Errorf("unexpected message type: %q", msg.Type)
	}
	if msg.Command == "" {
		return nil, fmt.Errorf("command is empty")
	}
	return &msg, nil
}

func NewResponse(id string, data interface{}, err error) ResponseMessage {
	res := ResponseMessage{
		Message: Message{Type: MessageTypeResponse, ID: id},
		Success: err == nil,
		Data:    data,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func NewNotification(event string, data interface{}) NotificationMessage {
	return NotificationMessage{
		Message: Message{Type: MessageTypeNotification},
		Event:   event,
		Data:    data,
	}
}

// EPCType はEPCのカスタム型
type EPCType uint8

// MarshalJSON は EPCType を16進数文字列としてJSONにマーシャルする
func (e EPCType) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%02X", uint8(e)))
}

// UnmarshalJSON は16進数文字列からEPCTypeにアンマーシャルする
func (e *EPCType) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}

	if len(decoded) != 1 {
		return fmt.Errorf("invalid EPC length: expected 1 byte, got %d bytes", len(decoded))
	}

	*e = EPCType(decoded[0])
	return nil
}

// ByteArray はカスタムJSONマーシャリングを行うためのバイト配列型
type ByteArray []byte

// MarshalJSON はByteArrayを16進数文字列としてJSONにマーシャルする
func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON は16進数文字列からByteArrayにアンマーシャルする
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return err
	}

	*b = ByteArray(decoded)
	return nil
}

// ノード情報
type NodeInfo struct {
	ID      string       `json:"id"`   // ノードID (IPアドレス)
	Self    bool         `json:"self"` // 自ノードかどうか
	Devices []DeviceInfo `json:"devices"`
}

// デバイス情報
type DeviceInfo struct {
	EOJ        string         `json:"eoj"`   // "0EF001" 形式
	Class      string         `json:"class"` // クラス名
	Kind       string         `json:"kind"`  // "generic", "local", "profile"
	Properties []PropertyInfo `json:"properties"`
}

// プロパティ情報
type PropertyInfo struct {
	EPC  EPCType   `json:"epc"`            // EPC
	EDT  ByteArray `json:"edt"`            // EDT
	Name string    `json:"name,omitempty"` // プロパティ名（存在する場合）
}

// プロパティ通知
type PropertyNotification struct {
	NodeID   string       `json:"node"`
	EOJ      string       `json:"eoj"`
	ESV      string       `json:"esv"`
	Property PropertyInfo `json:"property"`
}

// デバイスの追加・削除の通知
type DeviceNotification struct {
	NodeID string `json:"node"`
	EOJ    string `json:"eoj,omitempty"`
}

// ログ通知
type LogNotification struct {
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Time       string                 `json:"time"`
	Attributes map[string]interface{} `json:"attributes"`
}
