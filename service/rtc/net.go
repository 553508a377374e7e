// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const (
	udpSocketBufferSize = 1024 * 1024 * 16 // 16MB
)

// createUDPConns opens one socket per CPU bound to the same address so
// that the kernel spreads incoming packets among them.
func createUDPConns(log mlog.LoggerIFace, network, listenAddress string) ([]net.PacketConn, error) {
	listenConfig := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conns := make([]net.PacketConn, 0, runtime.NumCPU())
	closeAll := func() {
		for _, conn := range conns {
			conn.Close()
		}
	}

	for i := 0; i < runtime.NumCPU(); i++ {
		conn, err := listenConfig.ListenPacket(context.Background(), network, listenAddress)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to listen on udp: %w", err)
		}

		if udpConn, ok := conn.(*net.UDPConn); ok {
			if err := udpConn.SetWriteBuffer(udpSocketBufferSize); err != nil {
				log.Warn("rtc: failed to set udp send buffer", mlog.Err(err))
			}
			if err := udpConn.SetReadBuffer(udpSocketBufferSize); err != nil {
				log.Warn("rtc: failed to set udp receive buffer", mlog.Err(err))
			}
		}

		conns = append(conns, conn)
	}

	log.Info("rtc: engine is listening on udp",
		mlog.String("addr", conns[0].LocalAddr().String()),
		mlog.Int("sockets", len(conns)),
	)

	return conns, nil
}

// getSystemIPs returns the addresses of the active interfaces.
func getSystemIPs(log mlog.LoggerIFace, dualStack bool) ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get system interfaces: %w", err)
	}

	var ips []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.Warn("failed to get addresses for interface", mlog.String("interface", iface.Name), mlog.Err(err))
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.To4() == nil && (!dualStack || !ipNet.IP.IsGlobalUnicast()) {
				continue
			}
			ips = append(ips, ipNet.IP.String())
		}
	}

	return ips, nil
}
