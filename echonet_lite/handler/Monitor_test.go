package handler

import (
	"echonet-node/echonet_lite"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Start(t *testing.T) {
	t.Run("プロファイルが無ければ作る", func(t *testing.T) {
		env := newTestEnv(t, SNASilent, NewTemperatureSensor(1, nil))
		self := env.monitor.SelfNode()
		require.NotNil(t, self)
		assert.Equal(t, selfID, self.ID)
		require.NotNil(t, self.Profile())
		assert.Equal(t, DeviceProfile, self.Profile().Kind)
		assert.Equal(t, []echonet_lite.EOJ{sensor1, echonet_lite.NodeProfileObject}, self.EOJs())
	})

	t.Run("二度目の開始はエラー", func(t *testing.T) {
		env := newTestEnv(t, SNASilent)
		assert.ErrorIs(t, env.monitor.Start(selfID), ErrAlreadyStarted)
	})

	t.Run("重複したEOJはエラー", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		err := m.Start(selfID, NewTemperatureSensor(1, nil), NewTemperatureSensor(1, nil))
		assert.Error(t, err)
	})

	t.Run("プロファイルが2つあるとエラー", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		other := NewNodeProfile(nil)
		other.EOJ = echonet_lite.MakeEOJ(echonet_lite.NodeProfile_ClassCode, echonet_lite.InstanceProfileSendOnly)
		err := m.Start(selfID, NewNodeProfile(nil), other)
		assert.Error(t, err)
	})

	t.Run("遠隔デバイスは自ノードに置けない", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		assert.Error(t, m.Start(selfID, NewRemoteDevice(sensor1)))
	})

	t.Run("空のIDはエラー", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		assert.Error(t, m.Start(""))
	})

	t.Run("スケジューラが無いとエラー", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{})
		assert.ErrorIs(t, m.Start(selfID), ErrNoScheduler)
		assert.Nil(t, m.SelfNode())
	})

	t.Run("0EF0 の一般デバイスはプロファイルにできない", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		err := m.Start(selfID, NewLocalDevice(echonet_lite.NodeProfileObject, nil))
		assert.Error(t, err)
		assert.Nil(t, m.SelfNode())
	})

	t.Run("渡したプロファイルで探索が進む", func(t *testing.T) {
		env := newTestEnv(t, SNASilent, NewNodeProfile(nil))
		env.scheduler.Advance(0)
		require.Len(t, env.sender.sent, 1)
		env.sender.reset()

		env.monitor.Receive(frame(&echonet_lite.ECHONETLiteMessage{
			TID: 1, SEOJ: peerProfile, DEOJ: echonet_lite.NodeProfileObject, ESV: echonet_lite.ESVGet_Res,
			Properties: echonet_lite.Properties{prop(echonet_lite.EPCOperationStatus, echonet_lite.OperationStatusBooting)},
		}), peerID)
		require.Len(t, env.sender.sent, 1)
		assert.Equal(t, echonet_lite.RequestProperties(echonet_lite.EPC_NPO_SelfNodeInstanceListS), env.sender.sent[0].Msg.Properties)
	})
}

func TestMonitor_ReceiveDropsMalformedFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sender := &fakeSender{}
	m := NewMonitor(MonitorOptions{Sender: sender, Scheduler: newFakeScheduler(), Metrics: metrics})
	require.NoError(t, m.Start(selfID))

	tests := []struct {
		name string
		data []byte
	}{
		{"短すぎる", []byte{0x10, 0x81, 0x00}},
		{"OPC不一致", []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xff, 0x01, 0x0e, 0xf0, 0x01, 0x62, 0x02, 0x80, 0x00}},
		{"EDTが足りない", []byte{0x10, 0x81, 0x00, 0x01, 0x05, 0xff, 0x01, 0x0e, 0xf0, 0x01, 0x62, 0x01, 0x80, 0x02, 0x30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.Receive(tt.data, peerID)
		})
	}

	_, known := m.Node(peerID)
	assert.False(t, known, "解析に失敗したパケットではノードを作らない")
	assert.Empty(t, sender.sent)
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(metrics.decodeErrors))
}

func TestMonitor_ReceiveCreatesNodeOnFirstContact(t *testing.T) {
	env := newTestEnv(t, SNASilent)
	var events []DeviceEvent
	env.monitor.OnDeviceEvent(func(ev DeviceEvent) { events = append(events, ev) })

	msg := &echonet_lite.ECHONETLiteMessage{
		TID: 7, SEOJ: peerController, DEOJ: aircon1, ESV: echonet_lite.ESVGet,
		Properties: echonet_lite.RequestProperties(0x80),
	}
	env.monitor.Receive(frame(msg), peerID)
	env.monitor.Receive(frame(msg), peerID)

	node, ok := env.monitor.Node(peerID)
	require.True(t, ok)
	assert.Equal(t, 0, node.Len())
	assert.Equal(t, []DeviceEvent{{Type: NodeAdded, NodeID: peerID}}, events)
	assert.Len(t, env.monitor.Nodes(), 2)
}

func TestMonitor_SendAssignsTID(t *testing.T) {
	env := newTestEnv(t, SNASilent)
	profile := env.monitor.SelfNode().Profile()

	for i := 0; i < 3; i++ {
		require.NoError(t, env.monitor.SendFrom(profile, echonet_lite.ESVGet, echonet_lite.RequestProperties(0x80), peerProfile, peerID))
	}
	require.Len(t, env.sender.sent, 3)
	assert.Equal(t, echonet_lite.TIDType(1), env.sender.sent[0].Msg.TID)
	assert.Equal(t, echonet_lite.TIDType(2), env.sender.sent[1].Msg.TID)
	assert.Equal(t, echonet_lite.TIDType(3), env.sender.sent[2].Msg.TID)
	assert.Equal(t, peerID, env.sender.sent[0].To)
}

func TestMonitor_TIDWraps(t *testing.T) {
	env := newTestEnv(t, SNASilent)
	profile := env.monitor.SelfNode().Profile()
	env.monitor.tid = 0xfffe

	require.NoError(t, env.monitor.SendFrom(profile, echonet_lite.ESVGet, nil, peerProfile, peerID))
	require.NoError(t, env.monitor.SendFrom(profile, echonet_lite.ESVGet, nil, peerProfile, peerID))
	require.NoError(t, env.monitor.SendFrom(profile, echonet_lite.ESVGet, nil, peerProfile, peerID))

	tids := []echonet_lite.TIDType{}
	for _, s := range env.sender.sent {
		tids = append(tids, s.Msg.TID)
	}
	assert.Equal(t, []echonet_lite.TIDType{0xffff, 0x0000, 0x0001}, tids)
}

func TestMonitor_SendErrors(t *testing.T) {
	t.Run("送信失敗はエラーとして返る", func(t *testing.T) {
		env := newTestEnv(t, SNASilent)
		env.sender.err = errors.New("network down")
		err := env.monitor.SendFrom(env.monitor.SelfNode().Profile(), echonet_lite.ESVGet, nil, peerProfile, peerID)
		assert.Error(t, err)
	})

	t.Run("表現できないメッセージは送らない", func(t *testing.T) {
		env := newTestEnv(t, SNASilent)
		big := prop(0xe0, make([]byte, 256)...)
		err := env.monitor.SendFrom(env.monitor.SelfNode().Profile(), echonet_lite.ESVSetI, echonet_lite.Properties{big}, peerProfile, peerID)
		assert.ErrorIs(t, err, echonet_lite.ErrEDTTooLong)
		assert.Empty(t, env.sender.sent)
	})

	t.Run("Sender が無い", func(t *testing.T) {
		m := NewMonitor(MonitorOptions{Scheduler: newFakeScheduler()})
		require.NoError(t, m.Start(selfID))
		err := m.SendFrom(m.SelfNode().Profile(), echonet_lite.ESVGet, nil, peerProfile, peerID)
		assert.ErrorIs(t, err, ErrNoSender)
	})
}

func TestMonitor_RemoveDevice(t *testing.T) {
	env := newTestEnv(t, SNASilent, NewTemperatureSensor(1, nil), NewTemperatureSensor(2, nil))
	removed := false
	dev, _ := env.monitor.SelfNode().Device(sensor2)
	dev.OnRemove(func() { removed = true })

	require.NoError(t, env.monitor.RemoveDevice(selfID, sensor2))
	assert.True(t, removed)
	assert.False(t, env.monitor.SelfNode().HasDevice(sensor2))

	count, _ := env.monitor.SelfNode().Profile().Property(echonet_lite.EPC_NPO_SelfNodeInstances)
	assert.Equal(t, []byte{0x00, 0x00, 0x01}, count.EDT, "自ノードの集計も更新される")

	assert.ErrorIs(t, env.monitor.RemoveDevice(selfID, sensor2), ErrUnknownDevice)
	assert.ErrorIs(t, env.monitor.RemoveDevice("10.0.0.1", sensor1), ErrUnknownNode)
	assert.Error(t, env.monitor.RemoveDevice(selfID, echonet_lite.NodeProfileObject))
}

func TestMonitor_UpdateLocalPropertyAnnounces(t *testing.T) {
	env := newTestEnv(t, SNASilent, NewTemperatureSensor(1, nil))
	sensor, _ := env.monitor.SelfNode().Device(sensor1)
	sensor.SetAnnounceMap(echonet_lite.EPC_TS_MeasuredTemperature)

	p := echonet_lite.NewTemperature(27.0).Property()
	require.NoError(t, env.monitor.UpdateLocalProperty(sensor1, p))
	require.Len(t, env.sender.sent, 1)
	sent := env.sender.sent[0]
	assert.Equal(t, MulticastNodeID, sent.To)
	assert.Equal(t, echonet_lite.ESVINF, sent.Msg.ESV)
	assert.Equal(t, sensor1, sent.Msg.SEOJ)
	assert.Equal(t, echonet_lite.NodeProfileObject, sent.Msg.DEOJ)

	// 同じ値ではアナウンスしない
	require.NoError(t, env.monitor.UpdateLocalProperty(sensor1, p))
	assert.Len(t, env.sender.sent, 1)

	assert.ErrorIs(t, env.monitor.UpdateLocalProperty(sensor2, p), ErrUnknownDevice)
}

func TestMonitor_Snapshot(t *testing.T) {
	env := newTestEnv(t, SNASilent)
	env.monitor.AddDevice(peerID, NewRemoteDevice(sensor1))

	nodes := env.monitor.Snapshot()
	require.Len(t, nodes, 2)
	assert.Equal(t, selfID, nodes[0].ID)
	assert.True(t, nodes[0].Self)
	assert.Equal(t, peerID, nodes[1].ID)
	require.Len(t, nodes[1].Devices, 1)
	assert.Equal(t, sensor1, nodes[1].Devices[0].EOJ)
	assert.Equal(t, DeviceGeneric, nodes[1].Devices[0].Kind)

	// 写しを書き換えても元は変わらない
	nodes[0].Devices[0].Properties[0].EDT[0] = 0xff
	p, _ := env.monitor.SelfNode().Profile().Property(nodes[0].Devices[0].Properties[0].EPC)
	assert.NotEqual(t, byte(0xff), p.EDT[0])
}
