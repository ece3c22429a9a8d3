package correlator

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"strconv"
)

// RequestID identifies one accepted Send. Two requests with identical content
// sent separately get distinct IDs.
type RequestID uint64

// NoRequest is the zero RequestID. A parser returns it for frames that match
// no request.
const NoRequest RequestID = 0

func (id RequestID) String() string {
	if id == NoRequest {
		return "none"
	}

	return strconv.FormatUint(uint64(id), 10)
}

// idGenerator hands out request IDs. It starts from a random value so IDs from
// different correlators are unlikely to collide in logs.
type idGenerator struct {
	id uint64
}

func newIDGenerator() *idGenerator {
	gen := &idGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return gen
	}
	gen.id = uint64(binary.LittleEndian.Uint32(buf[:]))

	return gen
}

func (g *idGenerator) next() RequestID {
	g.id++
	if g.id == uint64(NoRequest) {
		g.id++
	}

	return RequestID(g.id)
}
