package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// UDPConnection は ECHONET Lite の UDP ソケットを管理します
type UDPConnection struct {
	UdpConn        *net.UDPConn
	pconn          *ipv4.PacketConn
	LocalAddr      *net.UDPAddr
	Port           int
	multicastIP    net.IP
	mu             sync.RWMutex
	localIPs       []net.IP // ローカルインターフェースのIPリスト
	networkMonitor *NetworkMonitor
}

// NetworkMonitor はローカルIPの変化を追跡します
type NetworkMonitor struct {
	cancel   context.CancelFunc
	interval time.Duration
	done     chan struct{}
}

// NetworkMonitorConfig はネットワーク監視の設定を表します
type NetworkMonitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

// CreateUDPConnection は port で待ち受け、multicastIP のグループに参加します。
// ip を指定した場合はそのアドレスを持つインターフェースでグループに参加し、送信もそのインターフェースから行います。
// マルチキャストの TTL は 1 (リンクローカル) です。
func CreateUDPConnection(ctx context.Context, ip net.IP, port int, multicastIP net.IP, networkMonitorConfig *NetworkMonitorConfig) (*UDPConnection, error) {
	if ip != nil && ip.To4() == nil {
		return nil, fmt.Errorf("IPv6 not supported for unicast ip")
	}
	if multicastIP == nil {
		multicastIP = ECHONETLiteMulticastIPv4
	}
	if multicastIP.To4() == nil || !multicastIP.IsMulticast() {
		return nil, fmt.Errorf("multicastIP is not an IPv4 multicast address: %v", multicastIP)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to listen UDP :%d: %w", port, err)
	}

	pconn := ipv4.NewPacketConn(conn)
	var ifi *net.Interface
	if ip != nil && !ip.IsUnspecified() {
		ifi, err = InterfaceByIP(ip)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if err := pconn.JoinGroup(ifi, &net.UDPAddr{IP: multicastIP}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to join multicast group %v: %w", multicastIP, err)
	}
	if ifi != nil {
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set multicast interface %s: %w", ifi.Name, err)
		}
	}
	if err := pconn.SetMulticastTTL(1); err != nil {
		slog.Warn("マルチキャストTTLの設定に失敗", "err", err)
	}
	if err := pconn.SetMulticastLoopback(false); err != nil {
		slog.Warn("マルチキャストループバックの設定に失敗", "err", err)
	}

	localIPs, err := GetLocalIPv4s()
	if err != nil {
		slog.Warn("ローカルIPを取得できません。自己送信パケットを除外できない可能性があります", "err", err)
		localIPs = []net.IP{}
	}
	if ip != nil && !ip.IsUnspecified() && !containsIP(localIPs, ip) {
		localIPs = append(localIPs, ip)
	}

	udpConn := &UDPConnection{
		UdpConn:     conn,
		pconn:       pconn,
		LocalAddr:   conn.LocalAddr().(*net.UDPAddr),
		Port:        port,
		multicastIP: multicastIP,
		localIPs:    localIPs,
	}

	if networkMonitorConfig != nil && networkMonitorConfig.Enabled {
		udpConn.startNetworkMonitor(ctx, networkMonitorConfig.Interval)
	}

	return udpConn, nil
}

func containsIP(ips []net.IP, ip net.IP) bool {
	for _, lip := range ips {
		if lip.Equal(ip) {
			return true
		}
	}
	return false
}

// isSelfPacket は指定されたアドレスが自身のいずれかのローカルIPとポートから送信されたものかを確認します
func (c *UDPConnection) isSelfPacket(src *net.UDPAddr) bool {
	if src == nil || src.Port != c.Port {
		return false
	}
	return c.IsLocalIP(src.IP)
}

// IsLocalIP は指定されたIPアドレスが自身のローカルIPのいずれかと一致するかを確認します
func (c *UDPConnection) IsLocalIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return containsIP(c.localIPs, ip)
}

// Close はソケットを閉じます
func (c *UDPConnection) Close() error {
	c.stopNetworkMonitor()
	return c.UdpConn.Close()
}

// MulticastIP は参加しているマルチキャストグループ
func (c *UDPConnection) MulticastIP() net.IP {
	return c.multicastIP
}

// SendTo は指定先にデータを送信します。dstIP が nil の場合はマルチキャストグループに送信します。
func (c *UDPConnection) SendTo(dstIP net.IP, data []byte) (int, error) {
	if dstIP == nil {
		dstIP = c.multicastIP
	}
	return c.UdpConn.WriteToUDP(data, &net.UDPAddr{IP: dstIP, Port: c.Port})
}

// bufferPool は受信バッファのプールです
var bufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 1500) },
}

// Receive は UDP パケットを受信し、データと送信元アドレスを返します。
// 自送信パケットは data が nil で返ります。コンテキストキャンセルに対応します。
func (c *UDPConnection) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.UdpConn.SetReadDeadline(deadline)
	} else {
		_ = c.UdpConn.SetReadDeadline(time.Time{})
	}

	type result struct {
		data []byte
		addr *net.UDPAddr
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := bufferPool.Get().([]byte)
		defer bufferPool.Put(buf)
		n, src, err := c.UdpConn.ReadFromUDP(buf)
		if err != nil {
			ch <- result{nil, nil, err}
			return
		}
		if c.isSelfPacket(src) {
			ch <- result{nil, src, nil}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		ch <- result{data, src, nil}
	}()

	select {
	case <-ctx.Done():
		_ = c.UdpConn.SetReadDeadline(time.Now())
		<-ch
		return nil, nil, ctx.Err()
	case res := <-ch:
		if res.err != nil && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return res.data, res.addr, res.err
	}
}

// IsClosed はソケットが閉じられたことによるエラーかどうか
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// startNetworkMonitor は定期的にローカルIPを再取得し、自己送信パケットの判定に反映します
func (c *UDPConnection) startNetworkMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	nm := &NetworkMonitor{
		cancel:   cancel,
		interval: interval,
		done:     make(chan struct{}),
	}
	c.mu.Lock()
	c.networkMonitor = nm
	c.mu.Unlock()

	go func() {
		defer close(nm.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				c.refreshLocalIPs()
			}
		}
	}()
	slog.Info("ネットワーク監視が開始されました", "interval", interval)
}

func (c *UDPConnection) refreshLocalIPs() {
	ips, err := GetLocalIPv4s()
	if err != nil {
		slog.Warn("ローカルIPアドレスの再取得に失敗", "err", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !sameIPs(c.localIPs, ips) {
		slog.Info("ローカルIPアドレスの変更を検出しました", "ips", ips)
		c.localIPs = ips
	}
}

func sameIPs(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	for _, ip := range a {
		if !containsIP(b, ip) {
			return false
		}
	}
	return true
}

// stopNetworkMonitor はネットワーク監視を停止します
func (c *UDPConnection) stopNetworkMonitor() {
	c.mu.Lock()
	nm := c.networkMonitor
	c.networkMonitor = nil
	c.mu.Unlock()
	if nm != nil {
		nm.cancel()
		<-nm.done
		slog.Info("ネットワーク監視が停止されました")
	}
}

// IsNetworkMonitorEnabled はネットワーク監視が有効かどうかを返します
func (c *UDPConnection) IsNetworkMonitorEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkMonitor != nil
}
