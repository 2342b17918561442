// Package serialcan implements j1939.Driver over an SLCAN-style ASCII CAN
// adapter (the protocol spoken by most USB-CAN dongles) reached through a
// serial port, adapted from the teacher's own pattern of opening
// github.com/tarm/serial directly in cmd/n2kreader and handing the
// resulting io.ReadWriteCloser to a device type.
package serialcan

import (
	"bufio"
	"fmt"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/tinshed-iot/go-j1939"
)

// Config configures a Driver's serial port, mirroring the fields the
// teacher passes to serial.Config in cmd/n2kreader/main.go.
type Config struct {
	// Name is the serial device path, e.g. "/dev/ttyUSB0".
	Name string
	// Baud is the serial baud rate.
	Baud int
	// ReadTimeout bounds how long a single Receive poll may block.
	ReadTimeout time.Duration
}

// Driver is a j1939.Driver that frames/deframes SLCAN extended-frame ASCII
// lines ("T" + 8 hex ID digits + 1 length digit + up to 16 hex data digits)
// over a serial port.
type Driver struct {
	cfg    Config
	port   *serial.Port
	reader *bufio.Reader
}

// NewDriver creates a Driver for cfg. Call Open before use.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Open opens the underlying serial port.
func (d *Driver) Open() error {
	readTimeout := d.cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        d.cfg.Name,
		Baud:        d.cfg.Baud,
		ReadTimeout: readTimeout,
		Size:        8,
	})
	if err != nil {
		return fmt.Errorf("serialcan: could not open %s: %w", d.cfg.Name, err)
	}
	d.port = port
	d.reader = bufio.NewReader(port)
	return nil
}

// Close closes the underlying serial port.
func (d *Driver) Close() error {
	return d.port.Close()
}

// Transmit implements j1939.Driver, encoding id/data as one SLCAN extended
// transmit line.
func (d *Driver) Transmit(id uint32, data []byte) error {
	line := fmt.Sprintf("T%08X%d", id, len(data))
	for _, b := range data {
		line += fmt.Sprintf("%02X", b)
	}
	line += "\r"
	_, err := d.port.Write([]byte(line))
	return err
}

// Receive implements j1939.Driver, reading and decoding one SLCAN line. A
// read timeout or a non-extended-frame line (the adapter's own "\r"
// acknowledgements, standard-frame "t" lines, error frames, ...) is
// reported as j1939.ErrNoFrame so callers can keep polling.
func (d *Driver) Receive() (uint32, []byte, error) {
	line, err := d.reader.ReadString('\r')
	if err != nil {
		return 0, nil, j1939.ErrNoFrame
	}
	return parseSLCANLine(line)
}

func parseSLCANLine(line string) (uint32, []byte, error) {
	if len(line) < 1 || line[0] != 'T' {
		return 0, nil, j1939.ErrNoFrame
	}
	line = line[1:]
	if len(line) < 9 {
		return 0, nil, j1939.ErrNoFrame
	}
	id, err := strconv.ParseUint(line[0:8], 16, 32)
	if err != nil {
		return 0, nil, j1939.ErrNoFrame
	}
	length, err := strconv.Atoi(line[8:9])
	if err != nil || length < 0 || length > 8 {
		return 0, nil, j1939.ErrNoFrame
	}
	payload := line[9:]
	if len(payload) < length*2 {
		return 0, nil, j1939.ErrNoFrame
	}
	data := make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := strconv.ParseUint(payload[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, nil, j1939.ErrNoFrame
		}
		data[i] = byte(b)
	}
	return uint32(id), data, nil
}
