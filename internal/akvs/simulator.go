package akvs

import (
	"bytes"
	"sync"
)

var replyBad = []byte("BAD" + Terminator)

// Simulator is the appliance state machine. It is safe for concurrent use.
type Simulator struct {
	mu    sync.Mutex
	slots map[string]string
}

// NewSimulator creates a Simulator with both slots holding "A".
func NewSimulator() *Simulator {
	return &Simulator{slots: map[string]string{SlotA: "A", SlotB: "A"}}
}

// Feed executes one terminated command and returns the reply.
func (s *Simulator) Feed(command []byte) []byte {
	body, ok := bytes.CutSuffix(command, []byte(Terminator))
	if !ok {
		return replyBad
	}

	fields := bytes.Split(body, []byte(" "))
	if len(fields) < 2 || !isSlot(fields[1]) {
		return replyBad
	}
	slot := string(fields[1])

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case string(fields[0]) == "GET" && len(fields) == 2:
		return s.reply("OK", slot)

	case string(fields[0]) == "SET" && len(fields) == 3:
		if !isValue(fields[2]) {
			return s.reply("NO", slot)
		}
		s.slots[slot] = string(fields[2])

		return s.reply("OK", slot)
	}

	return replyBad
}

// Broadcast returns the NOW message for the current state.
func (s *Simulator) Broadcast() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return []byte("NOW A " + s.slots[SlotA] + " B " + s.slots[SlotB] + Terminator)
}

// Value returns the current value of slot.
func (s *Simulator) Value(slot string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slots[slot]
}

func (s *Simulator) reply(status, slot string) []byte {
	return []byte(status + " " + slot + " " + s.slots[slot] + Terminator)
}
