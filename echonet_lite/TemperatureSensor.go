package echonet_lite

import (
	"echonet-node/echonet_lite/utils"
	"fmt"
	"math"
)

const (
	// EPC
	EPC_TS_MeasuredTemperature EPCType = 0xe0
)

// 温度計測値の特殊値
const (
	TemperatureOverflow  int16 = 0x7fff
	TemperatureUnderflow int16 = -0x8000
	TemperatureNoData    int16 = 0x7ffe
)

// Temperature は 0.1℃ 単位の温度計測値 (-2732〜32766)
type Temperature int16

func NewTemperature(celsius float64) Temperature {
	return Temperature(int16(math.Round(celsius * 10)))
}

func DecodeTemperature(EDT []byte) (*Temperature, error) {
	v, ok := utils.BytesToInt16(EDT)
	if !ok {
		return nil, fmt.Errorf("temperature must be 2 bytes: %X", EDT)
	}
	t := Temperature(v)
	return &t, nil
}

// Valid は特殊値(オーバーフロー等)でないかを返す
func (t Temperature) Valid() bool {
	switch int16(t) {
	case TemperatureOverflow, TemperatureUnderflow, TemperatureNoData:
		return false
	}
	return true
}

func (t Temperature) Celsius() float64 {
	return float64(t) / 10
}

func (t Temperature) EDT() []byte {
	return utils.Int16ToBytes(int16(t))
}

func (t Temperature) Property() Property {
	return Property{EPC: EPC_TS_MeasuredTemperature, EDT: t.EDT()}
}

func (t Temperature) String() string {
	switch int16(t) {
	case TemperatureOverflow:
		return "overflow"
	case TemperatureUnderflow:
		return "underflow"
	case TemperatureNoData:
		return "no data"
	}
	return fmt.Sprintf("%.1f℃", t.Celsius())
}
