package network

import (
	"fmt"
	"log/slog"
	"net"
)

// ECHONETLiteMulticastIPv4 は ECHONET Lite のマルチキャストグループ
var ECHONETLiteMulticastIPv4 = net.IPv4(224, 0, 23, 0)

// GetLocalUDPAddressFor は、指定された宛先IPアドレスとポートに対するローカルアドレスを取得します
func GetLocalUDPAddressFor(ip net.IP, port int) (*net.UDPAddr, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, err
	}
	defer func(conn *net.UDPConn) {
		_ = conn.Close()
	}(conn)
	return conn.LocalAddr().(*net.UDPAddr), nil
}

// InterfaceByIP は ip が割り当てられているインターフェースを返します
func InterfaceByIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface has address %v", ip)
}

// GetLocalIPv4s はローカルマシンの非ループバックIPv4アドレスのリストを取得します
func GetLocalIPv4s() ([]net.IP, error) {
	localIPs := []net.IP{}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	for _, i := range ifaces {
		// インターフェースがダウンしている、またはループバックの場合はスキップ
		if (i.Flags&net.FlagUp == 0) || (i.Flags&net.FlagLoopback != 0) {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			slog.Warn("インターフェースのアドレス取得に失敗", "interface", i.Name, "err", err)
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil {
				localIPs = append(localIPs, ip)
			}
		}
	}
	if len(localIPs) == 0 {
		slog.Warn("ローカルのIPv4アドレスが見つかりません")
	}
	return localIPs, nil
}
