package tunnel

import (
	"fmt"

	"github.com/lysShub/fragtun/frag"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

// Message decoded wire message
type Message struct {
	Kind proto.Kind

	// Frag valid when Kind is DataWithFrag
	Frag frag.Fields

	// Payload reference to decoded packet
	Payload []byte
}

func (m Message) String() string {
	if m.Kind == proto.DataWithFrag {
		return fmt.Sprintf("{Kind:%s, Frag:%s}", m.Kind, m.Frag)
	}
	return fmt.Sprintf("{Kind:%s, Length:%d}", m.Kind, len(m.Payload))
}

// Decode decode a received wire message, msg's data will be the payload.
// fragments are not reassembled.
func Decode(msg *packet.Packet) (Message, error) {
	if msg.Data() < proto.HeaderSize {
		return Message{}, errors.Errorf("packet too short %d", msg.Data())
	}

	var m = Message{Kind: proto.Kind(msg.Bytes()[0])}
	switch m.Kind {
	case proto.Data:
		var d proto.DataFields
		if err := d.Decode(msg); err != nil {
			return Message{}, err
		}
	case proto.DataWithFrag:
		if err := m.Frag.Decode(msg); err != nil {
			return Message{}, err
		}
	default:
		var h proto.Header
		if err := h.Decode(msg); err != nil {
			return Message{}, err
		}
	}
	m.Payload = msg.Bytes()
	return m, nil
}
