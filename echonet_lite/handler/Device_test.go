package handler

import (
	"echonet-node/echonet_lite"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_SetProperty(t *testing.T) {
	d := NewRemoteDevice(sensor1)

	assert.True(t, d.SetProperty(prop(0xe0, 0x00, 0xfa)), "新規は変化あり")
	assert.False(t, d.SetProperty(prop(0xe0, 0x00, 0xfa)), "同じ値は変化なし")
	assert.True(t, d.SetProperty(prop(0xe0, 0x00, 0xfb)))

	edt := []byte{0x01}
	d.SetProperty(prop(0x80, edt...))
	edt[0] = 0xff
	got, ok := d.Property(0x80)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, got.EDT, "保存時に EDT は複製される")
}

func TestDevice_Observe(t *testing.T) {
	d := NewRemoteDevice(sensor1)
	d.Observe(echonet_lite.Properties{prop(0xe0, 0x00, 0xfa), prop(0x80)})

	want := echonet_lite.Properties{prop(0xe0, 0x00, 0xfa)}
	if diff := cmp.Diff(want, d.Properties()); diff != "" {
		t.Errorf("Properties() mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_PropertyMaps(t *testing.T) {
	d := NewTemperatureSensor(1, nil)

	tests := []struct {
		name string
		epc  echonet_lite.EPCType
		want []echonet_lite.EPCType
	}{
		{
			name: "状態変化アナウンス",
			epc:  echonet_lite.EPCStatusAnnouncementPropertyMap,
			want: []echonet_lite.EPCType{0x80, 0x81, 0x88},
		},
		{
			name: "Set",
			epc:  echonet_lite.EPCSetPropertyMap,
			want: []echonet_lite.EPCType{},
		},
		{
			name: "Get",
			epc:  echonet_lite.EPCGetPropertyMap,
			want: []echonet_lite.EPCType{0x80, 0x81, 0x82, 0x88, 0x8a, 0x9d, 0x9e, 0x9f, 0xe0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := d.Property(tt.epc)
			require.True(t, ok)
			pm, err := echonet_lite.DecodePropertyMap(p.EDT)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pm.EPCs())
		})
	}

	d.SetSetMap(echonet_lite.EPCInstallationLocation)
	assert.True(t, d.SetMap().Has(echonet_lite.EPCInstallationLocation))
	p, _ := d.Property(echonet_lite.EPCSetPropertyMap)
	assert.Equal(t, []byte{0x01, 0x81}, p.EDT)
}

func TestDevice_Listeners(t *testing.T) {
	d := NewRemoteDevice(sensor1)
	called := 0
	d.AddListener(0xe0, func(string, echonet_lite.EOJ, *Device, echonet_lite.ESVType, echonet_lite.Property) {
		called++
	})

	fn, ok := d.listener(ListenerKey{ClassCode: echonet_lite.TemperatureSensor_ClassCode, EPC: 0xe0})
	require.True(t, ok)
	fn(peerID, sensor1, d, echonet_lite.ESVGet_Res, prop(0xe0))
	assert.Equal(t, 1, called)

	_, ok = d.listener(ListenerKey{ClassCode: echonet_lite.HomeAirConditioner_ClassCode, EPC: 0xe0})
	assert.False(t, ok, "他のクラスのキーでは引けない")

	d.RemoveListener(0xe0)
	_, ok = d.listener(ListenerKey{ClassCode: echonet_lite.TemperatureSensor_ClassCode, EPC: 0xe0})
	assert.False(t, ok)
}

func TestNode_Devices(t *testing.T) {
	n := NewNode(peerID, NewRemoteDevice(sensor2), NewRemoteDevice(sensor1))
	assert.Nil(t, n.Profile())
	n.AddDevice(NewRemoteDevice(peerProfile))

	assert.Equal(t, []echonet_lite.EOJ{sensor1, sensor2, peerProfile}, n.EOJs())
	require.NotNil(t, n.Profile())
	assert.Equal(t, peerProfile, n.Profile().EOJ)

	d, ok := n.RemoveDevice(sensor2)
	require.True(t, ok)
	assert.Equal(t, sensor2, d.EOJ)
	_, ok = n.RemoveDevice(sensor2)
	assert.False(t, ok)
	assert.Equal(t, 2, n.Len())
}
