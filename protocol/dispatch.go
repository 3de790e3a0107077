package protocol

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/twotier/cachebroker/l1"
)

// Dispatcher applies received Events to the local L1 engine. It is the
// receive-side half of the protocol; Encode/Event cover the send side.
type Dispatcher struct {
	l1       *l1.Engine
	selfID   string
	mu       sync.Mutex
	peers    map[string]struct{}
}

// NewDispatcher binds a Dispatcher to engine. selfID is this process's
// sender id; events carrying it are discarded.
func NewDispatcher(engine *l1.Engine, selfID string) *Dispatcher {
	return &Dispatcher{l1: engine, selfID: selfID, peers: make(map[string]struct{})}
}

// Dispatch applies ev's effect to the local L1 engine. It never touches L2:
// EVICT and CLEAR received over the channel only ever remove local L1 state,
// never the shared remote copy.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev.SenderID == d.selfID {
		return
	}
	switch ev.Operation {
	case OpJoin:
		d.mu.Lock()
		d.peers[ev.SenderID] = struct{}{}
		d.mu.Unlock()
	case OpQuit:
		d.mu.Lock()
		delete(d.peers, ev.SenderID)
		d.mu.Unlock()
	case OpEvict:
		if len(ev.Keys) > 0 {
			d.l1.EvictFromChannel(ev.Region, ev.Keys...)
		}
	case OpClear:
		d.l1.ClearFromChannel(ev.Region)
	default:
		log.Warn().Str("sender", ev.SenderID).Int("op", int(ev.Operation)).
			Msg("protocol: unknown operation, ignored")
	}
}

// Peers returns the set of sender ids currently known to be joined. Order
// is not guaranteed.
func (d *Dispatcher) Peers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.peers))
	for id := range d.peers {
		out = append(out, id)
	}
	return out
}
