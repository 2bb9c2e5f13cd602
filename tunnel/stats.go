package tunnel

import "sync/atomic"

type stats struct {
	packets    atomic.Uint64
	datas      atomic.Uint64
	fragmented atomic.Uint64
	fragments  atomic.Uint64
	messages   atomic.Uint64
	bytes      atomic.Uint64
	sendErrors atomic.Uint64
}

// Stats counters snapshot
type Stats struct {
	Packets    uint64 `json:"packets"`    // ip packets accepted by WritePacket
	Datas      uint64 `json:"datas"`      // packets sent as single Data message
	Fragmented uint64 `json:"fragmented"` // packets sent as DataWithFrag messages
	Fragments  uint64 `json:"fragments"`  // DataWithFrag messages sent
	Messages   uint64 `json:"messages"`
	Bytes      uint64 `json:"bytes"`
	SendErrors uint64 `json:"send_errors"`
}

func (c *Conn) Stats() Stats {
	return Stats{
		Packets:    c.stats.packets.Load(),
		Datas:      c.stats.datas.Load(),
		Fragmented: c.stats.fragmented.Load(),
		Fragments:  c.stats.fragments.Load(),
		Messages:   c.stats.messages.Load(),
		Bytes:      c.stats.bytes.Load(),
		SendErrors: c.stats.sendErrors.Load(),
	}
}
