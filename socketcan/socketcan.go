// Package socketcan implements j1939.Driver over a Linux SocketCAN raw CAN
// socket, adapted from the teacher's own AF_CAN/SOCK_RAW connection code:
// where the teacher wrapped an nmea.RawFrame around the raw socket, this
// package exchanges the 29-bit CAN identifier and payload the j1939 engine
// already speaks directly, with no intermediate frame type.
package socketcan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tinshed-iot/go-j1939"
)

const (
	canRaw = 1

	// canIDERRFlag is bit 29 in CAN ID and means ERR error message flag (0 = data frame, 1 = error message)
	canIDERRFlag = uint32(1 << 29)
	// canIDRTRFlag is bit 30 in CAN ID and means RTR remote transmission request (1 = rtr frame)
	canIDRTRFlag = uint32(1 << 30)
	// canIDEFFFlag is bit 31 in CAN ID and means EFF extended frame format / IDE identifier extension flag (0 = standard 11 bit, 1 = extended 29 bit)
	canIDEFFFlag = uint32(1 << 31)
)

var errReadTimeout = errors.New("socketcan: read timeout")

// Connection is a bound AF_CAN/SOCK_RAW socket on one interface.
type Connection struct {
	socketFD int
}

// NewConnection opens and binds a raw CAN socket on ifName (e.g. "can0").
func NewConnection(ifName string) (*Connection, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("socketcan: bad interface name: %w", err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("socketcan: could not create CAN socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err = unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("socketcan: could not bind CAN socket: %w", err)
	}

	return &Connection{socketFD: fd}, nil
}

func isContinuableSocketErr(err error) bool {
	// EWOULDBLOCK - a read/write with SO_RCVTIMEO/SO_SNDTIMEO set returns
	// this once the timeout elapses with no data available/buffer full.
	// EINTR - a blocking syscall interrupted by a signal.
	return err == syscall.EWOULDBLOCK || err == syscall.EINTR
}

// SetReadTimeout bounds how long Receive's underlying read may block.
func (c *Connection) SetReadTimeout(timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(c.socketFD, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// Close releases the underlying socket.
func (c *Connection) Close() error {
	return unix.Close(c.socketFD)
}

// Transmit implements j1939.Driver: id is a 29-bit extended CAN identifier
// (EFF flag set internally), data is 0-8 bytes.
func (c *Connection) Transmit(id uint32, data []byte) error {
	// Linux struct can_frame: https://github.com/linux-can/can-utils/blob/master/include/linux/can.h
	frame := make([]byte, 16)
	binary.LittleEndian.PutUint32(frame[0:4], id|canIDEFFFlag)
	frame[4] = byte(len(data))
	copy(frame[8:], data)

	_, err := unix.Write(c.socketFD, frame)
	return err
}

// Receive implements j1939.Driver: it polls (with a short read timeout so
// callers can loop without blocking forever) for the next extended data
// frame, silently skipping standard, RTR and error frames.
func (c *Connection) Receive() (uint32, []byte, error) {
	if err := c.SetReadTimeout(10 * time.Millisecond); err != nil {
		return 0, nil, err
	}
	frame := make([]byte, 16)
	_, err := unix.Read(c.socketFD, frame)
	if err != nil {
		if isContinuableSocketErr(err) {
			return 0, nil, j1939.ErrNoFrame
		}
		return 0, nil, err
	}

	id := binary.LittleEndian.Uint32(frame[0:4])
	if id&canIDEFFFlag == 0 || id&canIDRTRFlag != 0 || id&canIDERRFlag != 0 {
		return 0, nil, j1939.ErrNoFrame
	}
	length := frame[4]
	data := make([]byte, length)
	copy(data, frame[8:8+length])
	return id &^ (canIDEFFFlag | canIDRTRFlag | canIDERRFlag), data, nil
}

// Driver adapts a Connection to j1939.Driver, matching the teacher's
// Device-wraps-Connection layering (socketcan.Device wraps
// socketcan.Connection) but against the simpler Driver surface the j1939
// engine needs instead of nmea.RawMessageReaderWriter.
type Driver struct {
	conn *Connection

	// ifName is the SocketCAN interface name, e.g. "can0".
	ifName string
}

// NewDriver creates a Driver bound to ifName. Call Open before use.
func NewDriver(ifName string) *Driver {
	return &Driver{ifName: ifName}
}

// Open binds the underlying CAN socket.
func (d *Driver) Open() error {
	conn, err := NewConnection(d.ifName)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

// Close releases the underlying CAN socket.
func (d *Driver) Close() error {
	return d.conn.Close()
}

// Transmit implements j1939.Driver.
func (d *Driver) Transmit(id uint32, data []byte) error {
	return d.conn.Transmit(id, data)
}

// Receive implements j1939.Driver.
func (d *Driver) Receive() (uint32, []byte, error) {
	return d.conn.Receive()
}
