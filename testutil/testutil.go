// Package testutil provides shared test doubles for the j1939 engine,
// modeled on the teacher's own test package (test/helper.go,
// test/rawmessage.go): a fake Driver that buffers transmitted frames and
// replays injected ones, and a fake Clock whose value the test controls
// directly instead of depending on wall-clock time.
package testutil

import (
	"github.com/tinshed-iot/go-j1939"
)

// FakeDriver is a j1939.Driver backed by two in-memory queues: frames
// pushed with Inject are what Receive returns, and frames passed to
// Transmit are recorded for assertions rather than put on any real bus.
type FakeDriver struct {
	inbox  []rawFrame
	outbox []rawFrame
}

type rawFrame struct {
	id   uint32
	data []byte
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Transmit implements j1939.Driver by recording the frame for later
// inspection via Sent/PopSent.
func (d *FakeDriver) Transmit(id uint32, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	d.outbox = append(d.outbox, rawFrame{id: id, data: cp})
	return nil
}

// Receive implements j1939.Driver, returning the oldest frame queued by
// Inject, or j1939.ErrNoFrame once the inbox is empty.
func (d *FakeDriver) Receive() (uint32, []byte, error) {
	if len(d.inbox) == 0 {
		return 0, nil, j1939.ErrNoFrame
	}
	f := d.inbox[0]
	d.inbox = d.inbox[1:]
	return f.id, f.data, nil
}

// Inject queues a frame to be returned by a future Receive call, as if it
// had just arrived on the bus.
func (d *FakeDriver) Inject(id uint32, data []byte) {
	d.inbox = append(d.inbox, rawFrame{id: id, data: data})
}

// PopSent dequeues the oldest frame handed to Transmit, if any.
func (d *FakeDriver) PopSent() (id uint32, data []byte, ok bool) {
	if len(d.outbox) == 0 {
		return 0, nil, false
	}
	f := d.outbox[0]
	d.outbox = d.outbox[1:]
	return f.id, f.data, true
}

// SentCount reports how many frames are currently queued for PopSent.
func (d *FakeDriver) SentCount() int {
	return len(d.outbox)
}

// FakeClock is a j1939.Clock the test advances explicitly, standing in
// for the teacher's time.Now()-backed fields (e.g. socketcan.Device.timeNow)
// the way original_source/src/time.rs's TestTimer stands in for its
// process-global Timer.
type FakeClock struct {
	millis uint64
}

// NewFakeClock creates a FakeClock starting at 0ms.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// NowMillis implements j1939.Clock.
func (c *FakeClock) NowMillis() uint64 {
	return c.millis
}

// Set moves the clock directly to millis.
func (c *FakeClock) Set(millis uint64) {
	c.millis = millis
}

// Advance moves the clock forward by millis.
func (c *FakeClock) Advance(millis uint64) {
	c.millis += millis
}
