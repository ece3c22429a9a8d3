// Package akvs implements a tiny ASCII key/value appliance protocol.
//
// The appliance has two one-letter slots, A and B, both holding 'A' at start.
// Every message ends with a carriage return:
//
//	SET <slot> <value>    set a slot, value must be an uppercase letter
//	GET <slot>            read a slot
//
//	OK <slot> <value>     success, carries the slot's current value
//	NO <slot> <value>     rejected value, carries the slot's current value
//	BAD                   unrecognized request
//	NOW A <value> B <value>   unsolicited state broadcast
//
// The package provides the requests, a parser for the correlator, an
// in-process simulator and a TCP server wrapping the simulator. It backs the
// akvsctl command and the tests of the engine packages.
package akvs
