package akvs

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-serialproto/correlator"
)

// Terminator ends every akvs message.
const Terminator = "\r"

// DefaultTimeout is the reply timeout of requests built by NewGet and NewSet.
const DefaultTimeout = 100 * time.Millisecond

// Slot names.
const (
	SlotA = "A"
	SlotB = "B"
)

var (
	// ErrMalformedReply indicates a frame that is not a valid akvs reply.
	ErrMalformedReply = errors.New("akvs: malformed reply")

	// ErrInvalidRequest indicates a request field that does not encode as a
	// single word of one command line.
	ErrInvalidRequest = errors.New("akvs: invalid request")
)

// Kind is the type of a Reply.
type Kind int

const (
	KindOK Kind = iota
	KindNO
	KindBAD
	KindNOW
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindNO:
		return "NO"
	case KindBAD:
		return "BAD"
	case KindNOW:
		return "NOW"
	default:
		return "UNKNOWN"
	}
}

// Reply is a parsed appliance message.
type Reply struct {
	Kind Kind
	// Slot and Value are set for OK and NO.
	Slot  string
	Value string
	// A and B are set for NOW.
	A string
	B string
}

func (r Reply) String() string {
	switch r.Kind {
	case KindOK, KindNO:
		return fmt.Sprintf("%s %s %s", r.Kind, r.Slot, r.Value)
	case KindNOW:
		return fmt.Sprintf("NOW A %s B %s", r.A, r.B)
	default:
		return r.Kind.String()
	}
}

// Command is a request that can check its own fields before it is sent.
type Command interface {
	correlator.Request
	Validate() error
}

// Get reads a slot.
type Get struct {
	Slot string
	Wait time.Duration
}

var _ Command = (*Get)(nil)

// NewGet creates a Get with DefaultTimeout.
func NewGet(slot string) *Get {
	return &Get{Slot: slot, Wait: DefaultTimeout}
}

// Bytes implements correlator.Request.
func (g *Get) Bytes() []byte {
	return []byte("GET " + g.Slot + Terminator)
}

// Timeout implements correlator.Request.
func (g *Get) Timeout() time.Duration {
	return g.Wait
}

// Validate reports ErrInvalidRequest when the slot would break the command
// line. Unknown slots pass; the appliance answers them with BAD.
func (g *Get) Validate() error {
	return checkWord("slot", g.Slot)
}

func (g *Get) String() string {
	return "GET " + g.Slot
}

// Set writes a slot.
type Set struct {
	Slot  string
	Value string
	Wait  time.Duration
}

var _ Command = (*Set)(nil)

// NewSet creates a Set with DefaultTimeout.
func NewSet(slot, value string) *Set {
	return &Set{Slot: slot, Value: value, Wait: DefaultTimeout}
}

// Bytes implements correlator.Request.
func (s *Set) Bytes() []byte {
	return []byte("SET " + s.Slot + " " + s.Value + Terminator)
}

// Timeout implements correlator.Request.
func (s *Set) Timeout() time.Duration {
	return s.Wait
}

// Validate reports ErrInvalidRequest when the slot or the value would break
// the command line. Values out of range pass; the appliance refuses them.
func (s *Set) Validate() error {
	if err := checkWord("slot", s.Slot); err != nil {
		return err
	}

	return checkWord("value", s.Value)
}

func (s *Set) String() string {
	return "SET " + s.Slot + " " + s.Value
}

// ParseReply parses one terminated frame.
func ParseReply(frame []byte) (Reply, error) {
	body, ok := bytes.CutSuffix(frame, []byte(Terminator))
	if !ok {
		return Reply{}, fmt.Errorf("%w: missing terminator in %q", ErrMalformedReply, frame)
	}

	fields := bytes.Split(body, []byte(" "))
	switch string(fields[0]) {
	case "NOW":
		if len(fields) != 5 || string(fields[1]) != SlotA || string(fields[3]) != SlotB ||
			!isValue(fields[2]) || !isValue(fields[4]) {
			break
		}

		return Reply{Kind: KindNOW, A: string(fields[2]), B: string(fields[4])}, nil

	case "OK", "NO":
		if len(fields) != 3 || !isSlot(fields[1]) || !isValue(fields[2]) {
			break
		}

		kind := KindOK
		if string(fields[0]) == "NO" {
			kind = KindNO
		}

		return Reply{Kind: kind, Slot: string(fields[1]), Value: string(fields[2])}, nil

	case "BAD":
		if len(fields) != 1 {
			break
		}

		return Reply{Kind: KindBAD}, nil
	}

	return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, body)
}

// checkWord rejects empty fields and fields carrying a space, the terminator
// or any other control byte.
func checkWord(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidRequest, name)
	}

	for i := 0; i < len(v); i++ {
		if v[i] <= ' ' || v[i] == 0x7f {
			return fmt.Errorf("%w: %s %q", ErrInvalidRequest, name, v)
		}
	}

	return nil
}

func isSlot(p []byte) bool {
	return len(p) == 1 && (p[0] == 'A' || p[0] == 'B')
}

func isValue(p []byte) bool {
	return len(p) == 1 && p[0] >= 'A' && p[0] <= 'Z'
}
