package handler

import (
	"echonet-node/echonet_lite"
	"fmt"
	"log/slog"
	"strings"
)

// SNAPolicy は応答できるプロパティが無かった要求への対応方針
type SNAPolicy int

const (
	SNASilent SNAPolicy = iota // 何も返さない
	SNAStrict                  // 不可応答(SNA)を返す
)

func (p SNAPolicy) String() string {
	switch p {
	case SNASilent:
		return "silent"
	case SNAStrict:
		return "strict"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParseSNAPolicy(s string) (SNAPolicy, error) {
	switch strings.ToLower(s) {
	case "", "silent":
		return SNASilent, nil
	case "strict":
		return SNAStrict, nil
	}
	return SNASilent, fmt.Errorf("unknown SNA policy: %q", s)
}

// requestResult は要求を処理した結果
type requestResult struct {
	response  echonet_lite.Properties // 正常応答に載せるプロパティ
	rejected  echonet_lite.Properties // 処理できなかったプロパティ
	announced echonet_lite.Properties // 書き込みで変化したアナウンス対象のプロパティ
	accepted  int                     // 処理できたプロパティの数
}

// processRequest は自ノードのデバイスへの要求を処理する。
// Get 系は Get プロパティマップにあるものだけ要求順に返し、Set 系は Set プロパティマップにあるものだけ書き込む。
func processRequest(d *Device, msg *echonet_lite.ECHONETLiteMessage) requestResult {
	var result requestResult
	switch msg.ESV {
	case echonet_lite.ESVGet, echonet_lite.ESVINF_REQ, echonet_lite.ESVINFC:
		for _, p := range msg.Properties {
			prop, ok := d.Property(p.EPC)
			if !d.getMap.Has(p.EPC) || !ok {
				result.rejected = append(result.rejected, echonet_lite.Property{EPC: p.EPC})
				continue
			}
			result.response = append(result.response, prop)
			result.accepted++
		}

	case echonet_lite.ESVSetI, echonet_lite.ESVSetC:
		for _, p := range msg.Properties {
			if !d.setMap.Has(p.EPC) {
				result.rejected = append(result.rejected, p)
				continue
			}
			result.accepted++
			if d.SetProperty(p) && d.announceMap.Has(p.EPC) {
				result.announced = append(result.announced, p)
			}
			if msg.ESV == echonet_lite.ESVSetC {
				prop, _ := d.Property(p.EPC)
				result.response = append(result.response, prop)
			}
		}

	case echonet_lite.ESVSetGet:
		// 書き込み・読み出し要求は扱わない
		for _, p := range msg.Properties {
			result.rejected = append(result.rejected, echonet_lite.Property{EPC: p.EPC})
		}
	}
	return result
}

// handleRequest は要求を処理し、必要なら応答を送る。
// 応答は要求の TID を引き継ぎ、送信元はデバイス、宛先は要求の SEOJ。
func (m *Monitor) handleRequest(d *Device, msg *echonet_lite.ECHONETLiteMessage, origin string) {
	if !d.IsLocal() {
		return
	}
	result := processRequest(d, msg)

	if len(result.announced) > 0 {
		if err := m.announce(d, result.announced); err != nil {
			slog.Warn("状態変化アナウンスに失敗", "device", d.EOJ, "err", err)
		}
	}

	if len(result.response) > 0 {
		if esv, ok := msg.ESV.ResponseESV(); ok {
			m.reply(d, msg, esv, result.response, origin)
		}
		return
	}

	// 不可応答は要求されたプロパティが一つも処理できなかったときだけ返す
	if result.accepted > 0 || len(result.rejected) == 0 || m.snaPolicy != SNAStrict {
		if len(result.rejected) > 0 {
			slog.Debug("応答できるプロパティがありません", "device", d.EOJ, "ESV", msg.ESV, "EPCs", result.rejected.EPCs())
		}
		return
	}
	if esv, ok := msg.ESV.SNAESV(); ok {
		m.reply(d, msg, esv, result.rejected, origin)
	}
}

func (m *Monitor) reply(d *Device, req *echonet_lite.ECHONETLiteMessage, esv echonet_lite.ESVType, props echonet_lite.Properties, origin string) {
	res := &echonet_lite.ECHONETLiteMessage{
		SEOJ:       d.EOJ,
		DEOJ:       req.SEOJ,
		ESV:        esv,
		Properties: props,
	}
	if err := m.Reply(req, res, origin); err != nil {
		slog.Warn("応答の送信に失敗", "to", origin, "ESV", esv, "err", err)
	}
}
