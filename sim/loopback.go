package sim

import (
	"sync"
	"time"
)

// Loopback records the bits the master writes and, once armed, plays them
// back on the following read slots.
type Loopback struct {
	mx       sync.Mutex
	received []bool
	tx       []bool
	armed    bool
}

func (lb *Loopback) Reset() bool {
	return true
}

func (lb *Loopback) SlotStart() bool {
	lb.mx.Lock()
	defer lb.mx.Unlock()
	return lb.armed && len(lb.tx) > 0 && !lb.tx[0]
}

func (lb *Loopback) SlotEnd(low time.Duration) {
	lb.mx.Lock()
	defer lb.mx.Unlock()
	if !lb.armed {
		lb.received = append(lb.received, low < SampleAt)
		return
	}
	if len(lb.tx) > 0 {
		lb.tx = lb.tx[1:]
	}
	if len(lb.tx) == 0 {
		lb.armed = false
	}
}

// Arm queues everything received so far for transmission.
func (lb *Loopback) Arm() {
	lb.mx.Lock()
	defer lb.mx.Unlock()
	lb.tx = lb.received
	lb.received = nil
	lb.armed = len(lb.tx) > 0
}

func (lb *Loopback) Received() []bool {
	lb.mx.Lock()
	defer lb.mx.Unlock()
	res := make([]bool, len(lb.received))
	copy(res, lb.received)
	return res
}
