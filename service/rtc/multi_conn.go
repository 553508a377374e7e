// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	receiveMTU = 1460
)

// multiConn exposes a set of sockets bound to the same address as a single
// net.PacketConn. Reads are fanned in and writes are spread round-robin.
type multiConn struct {
	conns   []net.PacketConn
	readCh  chan readResult
	closeCh chan struct{}
	bufPool sync.Pool
	counter atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

type readResult struct {
	n    int
	addr net.Addr
	err  error
	buf  []byte
}

func newMultiConn(conns []net.PacketConn) (*multiConn, error) {
	if len(conns) == 0 {
		return nil, errors.New("conns should not be empty")
	}
	for _, conn := range conns {
		if conn == nil {
			return nil, errors.New("invalid nil conn")
		}
	}

	mc := &multiConn{
		conns:   conns,
		readCh:  make(chan readResult, len(conns)*2),
		closeCh: make(chan struct{}),
	}
	mc.bufPool.New = func() any {
		return make([]byte, receiveMTU)
	}

	mc.wg.Add(len(conns))
	for _, conn := range conns {
		go mc.reader(conn)
	}

	return mc, nil
}

func (mc *multiConn) reader(conn net.PacketConn) {
	defer mc.wg.Done()
	for {
		buf := mc.bufPool.Get().([]byte)
		n, addr, err := conn.ReadFrom(buf)
		select {
		case mc.readCh <- readResult{n: n, addr: addr, err: err, buf: buf}:
		case <-mc.closeCh:
			return
		}
		if err != nil && !os.IsTimeout(err) {
			return
		}
	}
}

func (mc *multiConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case res := <-mc.readCh:
		n := copy(p, res.buf[:res.n])
		mc.bufPool.Put(res.buf)
		return n, res.addr, res.err
	case <-mc.closeCh:
		return 0, nil, net.ErrClosed
	}
}

func (mc *multiConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	idx := (mc.counter.Add(1) - 1) % uint64(len(mc.conns))
	return mc.conns[idx].WriteTo(p, addr)
}

func (mc *multiConn) Close() error {
	if !mc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(mc.closeCh)
	var errs []error
	for _, conn := range mc.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	mc.wg.Wait()
	return errors.Join(errs...)
}

func (mc *multiConn) LocalAddr() net.Addr {
	return mc.conns[0].LocalAddr()
}

func (mc *multiConn) SetDeadline(t time.Time) error {
	return mc.each(func(conn net.PacketConn) error { return conn.SetDeadline(t) })
}

func (mc *multiConn) SetReadDeadline(t time.Time) error {
	return mc.each(func(conn net.PacketConn) error { return conn.SetReadDeadline(t) })
}

func (mc *multiConn) SetWriteDeadline(t time.Time) error {
	return mc.each(func(conn net.PacketConn) error { return conn.SetWriteDeadline(t) })
}

func (mc *multiConn) each(fn func(conn net.PacketConn) error) error {
	var errs []error
	for _, conn := range mc.conns {
		if err := fn(conn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
