package echonet_lite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEOJ_Codes(t *testing.T) {
	eoj := DecodeEOJ([]byte{0x05, 0xff, 0x02})

	assert.Equal(t, Controller_ClassCode, eoj.ClassCode())
	assert.Equal(t, EOJInstanceCode(2), eoj.InstanceCode())
	assert.Equal(t, ClassGroupManagementOperation, eoj.ClassGroupCode())
	assert.Equal(t, []byte{0x05, 0xff, 0x02}, eoj.Encode())
	assert.Equal(t, "05FF02", eoj.IDString())
	assert.Equal(t, "0011[Temperature sensor]", TemperatureSensor_ClassCode.String())
	assert.Equal(t, "0012[Sensor-related device]", EOJClassCode(0x0012).String())

	assert.Equal(t, EOJ(0), DecodeEOJ([]byte{0x05, 0xff}), "長さ不正は 0")
	assert.Equal(t, NewEOJ(0x0e, 0xf0, 1), NodeProfileObject)
	assert.True(t, NodeProfileObject.IsProfile())
}

func TestEOJ_Matches(t *testing.T) {
	sensor1 := MakeEOJ(TemperatureSensor_ClassCode, 1)
	sensor2 := MakeEOJ(TemperatureSensor_ClassCode, 2)
	allSensors := MakeEOJ(TemperatureSensor_ClassCode, InstanceAll)

	tests := []struct {
		name   string
		dest   EOJ
		target EOJ
		want   bool
	}{
		{"完全一致", sensor1, sensor1, true},
		{"インスタンス違い", sensor1, sensor2, false},
		{"全インスタンス指定", allSensors, sensor2, true},
		{"全インスタンス指定でもクラス違い", allSensors, MakeEOJ(Controller_ClassCode, 1), false},
		{"全インスタンス指定でもグループ違い", MakeEOJ(0x0111, 0), sensor1, false},
		{"インスタンス指定は全インスタンスに一致しない", sensor1, allSensors, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dest.Matches(tt.target))
		})
	}
}
