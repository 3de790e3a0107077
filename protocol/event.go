// Package protocol implements the cache channel protocol: the invalidation
// event wire format and the dispatch rules that apply a received event to
// the local L1 engine.
package protocol

import (
	"github.com/twotier/cachebroker/codec"
)

// Operation identifies what an Event asks peers to do.
type Operation byte

const (
	OpJoin  Operation = 1
	OpQuit  Operation = 2
	OpEvict Operation = 3
	OpClear Operation = 4
)

// Event is the invalidation message published on the channel. Keys is empty
// for CLEAR, JOIN, and QUIT.
type Event struct {
	Operation Operation `msgpack:"op"`
	Region    string    `msgpack:"region"`
	Keys      []string  `msgpack:"keys,omitempty"`
	SenderID  string    `msgpack:"sender"`
}

// Encode serialises ev with the codec.
func Encode(ev Event) ([]byte, error) {
	return codec.Encode(ev)
}

// Decode inverts Encode.
func Decode(b []byte) (Event, error) {
	var ev Event
	err := codec.Decode(b, &ev)
	return ev, err
}

func Join(region, senderID string) Event  { return Event{Operation: OpJoin, Region: region, SenderID: senderID} }
func Quit(region, senderID string) Event  { return Event{Operation: OpQuit, Region: region, SenderID: senderID} }
func Clear(region, senderID string) Event { return Event{Operation: OpClear, Region: region, SenderID: senderID} }
func Evict(region, senderID string, keys ...string) Event {
	return Event{Operation: OpEvict, Region: region, Keys: keys, SenderID: senderID}
}
