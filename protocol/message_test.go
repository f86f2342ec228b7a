package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEPCTypeMarshaling(t *testing.T) {
	tests := []struct {
		name string
		epc  EPCType
		want string
	}{
		{"Zero", EPCType(0x00), `"00"`},
		{"Random", EPCType(0x80), `"80"`},
		{"Max", EPCType(0xFF), `"FF"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bytes, err := json.Marshal(tt.epc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(bytes))

			var epc EPCType
			require.NoError(t, json.Unmarshal([]byte(tt.want), &epc))
			assert.Equal(t, tt.epc, epc)
		})
	}
}

func TestEPCTypeUnmarshal_Invalid(t *testing.T) {
	for _, input := range []string{`"8"`, `"8081"`, `"zz"`, `128`} {
		var epc EPCType
		assert.Error(t, json.Unmarshal([]byte(input), &epc), input)
	}
}

func TestByteArrayMarshaling(t *testing.T) {
	tests := []struct {
		name  string
		bytes ByteArray
		want  string
	}{
		{"Empty", ByteArray{}, `""`},
		{"SingleByte", ByteArray{0x01}, `"01"`},
		{"MultiByte", ByteArray{0x01, 0x02, 0x03}, `"010203"`},
		{"Null", nil, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bytes, err := json.Marshal(tt.bytes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(bytes))

			var b ByteArray
			require.NoError(t, json.Unmarshal([]byte(tt.want), &b))
			assert.Equal(t, len(tt.bytes), len(b))
			if tt.bytes == nil {
				assert.Nil(t, b)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *CommandMessage
		wantErr bool
	}{
		{
			name:  "search",
			input: `{"type":"command","id":"1","command":"search"}`,
			want:  &CommandMessage{Message: Message{Type: MessageTypeCommand, ID: "1"}, Command: "search"},
		},
		{
			name:  "id is optional",
			input: `{"type":"command","command":"list_nodes"}`,
			want:  &CommandMessage{Message: Message{Type: MessageTypeCommand}, Command: "list_nodes"},
		},
		{name: "broken json", input: `{"type":`, wantErr: true},
		{name: "not a command", input: `{"type":"response","command":"search"}`, wantErr: true},
		{name: "empty command", input: `{"type":"command","id":"2"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewResponse(t *testing.T) {
	ok, err := json.Marshal(NewResponse("7", []string{"a"}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","id":"7","success":true,"data":["a"]}`, string(ok))

	ng, err := json.Marshal(NewResponse("8", nil, errors.New("unknown command")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","id":"8","success":false,"error":"unknown command"}`, string(ng))
}

func TestNewNotification(t *testing.T) {
	data, err := json.Marshal(NewNotification(EventNodeAdded, DeviceNotification{NodeID: "192.168.0.20"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification","event":"nodeAdded","data":{"node":"192.168.0.20"}}`, string(data))
}
