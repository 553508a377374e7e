// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const stunTimeout = 5 * time.Second

// getPublicIP asks the STUN server at stunURL for the address the given
// local port is mapped to.
func getPublicIP(port int, stunURL string) (string, error) {
	if !strings.HasPrefix(stunURL, "stun:") {
		return "", fmt.Errorf("no STUN server URL was found")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{
		Port: port,
	})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	serverAddr, err := net.ResolveUDPAddr("udp4", strings.TrimPrefix(stunURL, "stun:"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve stun host: %w", err)
	}

	addr, err := getXORMappedAddr(conn, serverAddr, stunTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to get public address: %w", err)
	}

	return addr.IP.String(), nil
}

func getXORMappedAddr(conn net.PacketConn, serverAddr net.Addr, timeout time.Duration) (*stun.XORMappedAddress, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.SetReadDeadline(time.Time{})
	}()

	req, err := stun.Build(stun.BindingRequest, stun.TransactionID)
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteTo(req.Raw, serverAddr); err != nil {
		return nil, err
	}

	buf := make([]byte, receiveMTU)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}

	res := &stun.Message{Raw: buf[:n]}
	if err := res.Decode(); err != nil {
		return nil, err
	}
	if res.TransactionID != req.TransactionID {
		return nil, fmt.Errorf("unexpected transaction id in response")
	}

	var addr stun.XORMappedAddress
	if err := addr.GetFrom(res); err != nil {
		return nil, err
	}

	return &addr, nil
}
