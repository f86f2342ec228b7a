package handler

import (
	"echonet-node/echonet_lite"
	"log/slog"
	"time"
)

// TemperatureSource は温度センサの計測値を返す
type TemperatureSource func() (echonet_lite.Temperature, error)

// FixedTemperature は常に同じ値を返す計測値
func FixedTemperature(t echonet_lite.Temperature) TemperatureSource {
	return func() (echonet_lite.Temperature, error) {
		return t, nil
	}
}

// NewTemperatureSensor は温度センサクラス (0x0011) の自ノードデバイスを作る
func NewTemperatureSensor(instance echonet_lite.EOJInstanceCode, manufacturerCode []byte) *Device {
	d := NewLocalDevice(echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, instance), manufacturerCode)
	d.SetProperty(echonet_lite.Temperature(echonet_lite.TemperatureNoData).Property())
	d.AddGettable(echonet_lite.EPC_TS_MeasuredTemperature)
	return d
}

// StartSampling は interval ごとに source から値を読み、変化があれば Monitor 経由で更新する。
// デバイスが取り除かれるとタイマーも解除される。
func StartSampling(m *Monitor, d *Device, interval time.Duration, source TemperatureSource) TimerHandle {
	sample := func() {
		t, err := source()
		if err != nil {
			slog.Warn("温度の取得に失敗", "device", d.EOJ, "err", err)
			return
		}
		if err := m.UpdateLocalProperty(d.EOJ, t.Property()); err != nil {
			slog.Warn("温度の更新に失敗", "device", d.EOJ, "err", err)
		}
	}
	h := m.Scheduler().CallEvery(interval, sample)
	d.OnRemove(func() { m.Scheduler().Cancel(h) })
	return h
}

// NewController はコントローラクラス (0x05FF) の自ノードデバイスを作る
func NewController(instance echonet_lite.EOJInstanceCode, manufacturerCode []byte) *Device {
	return NewLocalDevice(echonet_lite.MakeEOJ(echonet_lite.Controller_ClassCode, instance), manufacturerCode)
}

// TemperatureReading は遠隔の温度センサから受け取った値
type TemperatureReading struct {
	NodeID      string
	EOJ         echonet_lite.EOJ
	Temperature echonet_lite.Temperature
}

// NewTemperaturePoller は温度センサを見つけると interval ごとに controller から計測値を問い合わせるデバイスを作る。
// 受け取った値は onReading に渡される。温度センサ以外は nil を返す。
func NewTemperaturePoller(m *Monitor, controller *Device, interval time.Duration, onReading func(TemperatureReading)) DeviceFactory {
	return func(nodeID string, eoj echonet_lite.EOJ) *Device {
		if eoj.ClassCode() != echonet_lite.TemperatureSensor_ClassCode {
			return nil
		}
		d := NewRemoteDevice(eoj)
		h := m.Scheduler().CallEvery(interval, func() {
			err := m.SendFrom(controller, echonet_lite.ESVGet,
				echonet_lite.RequestProperties(echonet_lite.EPC_TS_MeasuredTemperature),
				eoj, nodeID)
			if err != nil {
				slog.Warn("温度の問い合わせに失敗", "node", nodeID, "EOJ", eoj, "err", err)
			}
		})
		d.OnRemove(func() { m.Scheduler().Cancel(h) })

		d.AddListener(echonet_lite.EPC_TS_MeasuredTemperature, func(from string, seoj echonet_lite.EOJ, device *Device, esv echonet_lite.ESVType, p echonet_lite.Property) {
			if !esv.IsResponse() || seoj != device.EOJ {
				return
			}
			t, err := echonet_lite.DecodeTemperature(p.EDT)
			if err != nil {
				slog.Debug("温度のデコードに失敗", "node", from, "EOJ", seoj, "err", err)
				return
			}
			slog.Info("温度を受信", "node", from, "EOJ", seoj, "temperature", t.String())
			if onReading != nil {
				onReading(TemperatureReading{NodeID: from, EOJ: seoj, Temperature: *t})
			}
		})
		return d
	}
}
