package akvs

import (
	"github.com/arloliu/go-serialproto/correlator"
)

// Parser interprets akvs frames for a correlator. Broadcasts never answer a
// request; every other reply answers the waiting request when there is one.
type Parser struct{}

var _ correlator.Parser[Reply] = Parser{}

// Interpret implements correlator.Parser.
func (Parser) Interpret(frame []byte, waiting *correlator.Inflight) (Reply, correlator.RequestID, error) {
	reply, err := ParseReply(frame)
	if err != nil {
		return Reply{}, correlator.NoRequest, err
	}

	if reply.Kind == KindNOW || waiting == nil {
		return reply, correlator.NoRequest, nil
	}

	return reply, waiting.ID, nil
}
