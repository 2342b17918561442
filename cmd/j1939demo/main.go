// Command j1939demo wires a CAN transport (SocketCAN or an SLCAN serial
// adapter) into a stack.Stack, registers one demo Control Function, and
// logs every application frame it receives -- a minimal stand-in for the
// teacher's own cmd/n2kreader, reduced to the J1939 engine's own concerns
// instead of Actisense framing and Canboat PGN decoding.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/tinshed-iot/go-j1939"
	"github.com/tinshed-iot/go-j1939/internal/clock"
	"github.com/tinshed-iot/go-j1939/serialcan"
	"github.com/tinshed-iot/go-j1939/socketcan"
	"github.com/tinshed-iot/go-j1939/stack"
)

func main() {
	transportFlag := flag.String("transport", "socketcan", "CAN transport to use: socketcan or serial")
	ifName := flag.String("interface", "can0", "SocketCAN interface name (transport=socketcan)")
	serialPort := flag.String("port", "/dev/ttyUSB0", "serial device path (transport=serial)")
	baud := flag.Int("baud", 115200, "serial baud rate (transport=serial)")
	preferredAddress := flag.Uint("address", 0x80, "preferred source address for the demo control function")
	name := flag.Uint64("name", 0x8000000000000001, "64-bit NAME for the demo control function (MSB set = address-capable)")
	tickInterval := flag.Duration("tick", 50*time.Millisecond, "how often to call Stack.Process")
	flag.Parse()

	driver, closer := openDriver(*transportFlag, *ifName, *serialPort, *baud)
	defer closer()

	s := stack.New(driver, clock.New(), nil)
	handle := s.RegisterControlFunction(j1939.Name(*name), uint8(*preferredAddress))

	log.Printf("# j1939demo starting on %s transport", *transportFlag)
	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.Process()

		if addr, online := s.ControlFunction(handle).IsOnline(); online {
			log.Printf("# control function claimed address 0x%02X", addr)
		}
		for {
			frame, ok := s.GetFrame()
			if !ok {
				break
			}
			log.Printf("# received PGN 0x%05X from 0x%02X: % X", uint32(frame.Header.PGN), frame.Header.SourceAddress, frame.Data)
		}
	}
}

func openDriver(transport, ifName, serialPort string, baud int) (j1939.Driver, func() error) {
	switch transport {
	case "serial":
		d := serialcan.NewDriver(serialcan.Config{Name: serialPort, Baud: baud})
		if err := d.Open(); err != nil {
			log.Fatal(err)
		}
		return d, d.Close
	default:
		d := socketcan.NewDriver(ifName)
		if err := d.Open(); err != nil {
			log.Fatal(err)
		}
		return d, d.Close
	}
}
