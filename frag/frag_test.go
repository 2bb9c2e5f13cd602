package frag_test

import (
	"math/rand"
	"testing"

	"github.com/lysShub/fragtun/frag"
	"github.com/lysShub/fragtun/proto"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type sender struct {
	id   uint16
	msgs [][]byte

	failAt int // fail at failAt-th message, 1 base
	err    error
}

func (s *sender) NextFragID() uint16 {
	id := s.id
	s.id++
	return id
}

func (s *sender) SendMessage(msg *packet.Packet) error {
	if s.failAt > 0 && len(s.msgs)+1 == s.failAt {
		return s.err
	}
	s.msgs = append(s.msgs, append([]byte{}, msg.Bytes()...))
	return nil
}

func randPacket(n int) []byte {
	var b = make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func decode(t *testing.T, msg []byte) (frag.Fields, []byte) {
	var hdr frag.Fields
	var pkt = packet.From(msg)
	require.NoError(t, hdr.Decode(pkt))
	return hdr, pkt.Bytes()
}

func Test_Send(t *testing.T) {
	var (
		s   = &sender{id: 7}
		pkt = randPacket(1350)
	)

	require.NoError(t, frag.Send(s, pkt, 515))
	require.Equal(t, uint16(8), s.id)
	require.Len(t, s.msgs, 3)

	var (
		lens  = []int{512, 512, 326}
		mfs   = []bool{true, true, false}
		offs  = []int{0, 512, 1024}
		whole []byte
	)
	for i, msg := range s.msgs {
		require.Equal(t, byte(proto.DataWithFrag), msg[0])
		require.Equal(t, frag.HeaderSize+lens[i], len(msg))

		hdr, payload := decode(t, msg)
		require.Equal(t, uint16(7), hdr.ID)
		require.Equal(t, uint16(lens[i]), hdr.Length)
		require.Equal(t, mfs[i], hdr.Offset.More())
		require.Equal(t, offs[i], hdr.Offset.ByteOffset())
		whole = append(whole, payload...)
	}
	require.Equal(t, pkt, whole)
}

func Test_Send_Wire(t *testing.T) {
	var s = &sender{id: 0x0102}

	require.NoError(t, frag.Send(s, randPacket(20), 8))
	require.Len(t, s.msgs, 3)

	require.Equal(t, []byte{byte(proto.DataWithFrag), 0, 8, 1, 2, 0x20, 0}, s.msgs[0][:frag.HeaderSize])
	require.Equal(t, []byte{byte(proto.DataWithFrag), 0, 8, 1, 2, 0x20, 1}, s.msgs[1][:frag.HeaderSize])
	require.Equal(t, []byte{byte(proto.DataWithFrag), 0, 4, 1, 2, 0x00, 2}, s.msgs[2][:frag.HeaderSize])
}

func Test_Send_NullReference(t *testing.T) {
	var s = &sender{}

	err := frag.Send(nil, randPacket(1350), 1120)
	require.True(t, errors.Is(err, frag.ErrNullReference))

	err = frag.Send(s, nil, 1120)
	require.True(t, errors.Is(err, frag.ErrNullReference))
	require.Empty(t, s.msgs)
	require.Zero(t, s.id)
}

func Test_Send_InvalidState(t *testing.T) {
	var suits = []struct {
		name     string
		length   int
		fragSize int
	}{
		{"not oversize", 512, 512},
		{"not oversize after round", 512, 519},
		{"shorter", 100, 512},
		{"zero frag size", 1350, 7},
		{"negative frag size", 1350, -8},
		{"exceed mtu", 4000, proto.MaxWireMTU},
		{"offset overflow", frag.MaxOffset + 9, 8},
		{"offset overflow large", frag.MaxOffset + 1024 + 1, 1024},
	}

	for _, e := range suits {
		t.Run(e.name, func(t *testing.T) {
			var s = &sender{id: 3}

			err := frag.Send(s, randPacket(e.length), e.fragSize)
			require.True(t, errors.Is(err, frag.ErrInvalidState), err)
			require.Empty(t, s.msgs)
			require.Equal(t, uint16(3), s.id)
		})
	}
}

func Test_Send_MaxOffset(t *testing.T) {
	var s = &sender{}

	// last fragment start at MaxOffset exactly
	pkt := randPacket(frag.MaxOffset + 8)
	require.NoError(t, frag.Send(s, pkt, 8))
	require.Len(t, s.msgs, frag.MaxOffset/8+1)

	hdr, _ := decode(t, s.msgs[len(s.msgs)-1])
	require.Equal(t, frag.MaxOffset, hdr.Offset.ByteOffset())
	require.False(t, hdr.Offset.More())
}

func Test_Send_Failure(t *testing.T) {
	var (
		e = errors.New("transport failure")
		s = &sender{failAt: 2, err: e}
	)

	err := frag.Send(s, randPacket(1350), 515)
	require.Same(t, e, err)
	require.Len(t, s.msgs, 1)
	require.Equal(t, uint16(1), s.id)
}

func Test_Send_GroupID(t *testing.T) {
	var s = &sender{id: 0xfffe}

	for _, expect := range []uint16{0xfffe, 0xffff, 0, 1} {
		s.msgs = s.msgs[:0]
		require.NoError(t, frag.Send(s, randPacket(100), 32))
		require.Len(t, s.msgs, 4)

		for _, msg := range s.msgs {
			hdr, _ := decode(t, msg)
			require.Equal(t, expect, hdr.ID)
		}
	}
	require.Equal(t, uint16(2), s.id)
}

func Test_Send_Random(t *testing.T) {
	var r = rand.New(rand.NewSource(1))

	for i := 0; i < 256; i++ {
		fragSize := 8 + r.Intn(frag.MaxFragSize)
		rounded := frag.RoundSize(fragSize)
		length := rounded + 1 + r.Intn(16*rounded)
		if limit := (frag.MaxOffset/rounded + 1) * rounded; length > limit {
			length = limit
		}

		var (
			s   = &sender{id: uint16(r.Uint32())}
			pkt = randPacket(length)
			id  = s.id
		)
		require.NoError(t, frag.Send(s, pkt, fragSize))
		require.Len(t, s.msgs, frag.Count(length, fragSize))
		require.Equal(t, id+1, s.id)

		var whole []byte
		for j, msg := range s.msgs {
			hdr, payload := decode(t, msg)

			require.Equal(t, id, hdr.ID)
			require.Equal(t, len(whole), hdr.Offset.ByteOffset())
			require.Equal(t, int(hdr.Length), len(payload))
			require.LessOrEqual(t, len(msg), proto.MaxWireMTU)
			require.Equal(t, j != len(s.msgs)-1, hdr.Offset.More())
			whole = append(whole, payload...)
		}
		require.Equal(t, pkt, whole)
	}
}

func Test_RoundSize(t *testing.T) {
	require.Equal(t, 512, frag.RoundSize(515))
	require.Equal(t, 512, frag.RoundSize(512))
	require.Equal(t, 0, frag.RoundSize(7))
	require.Equal(t, 0, frag.RoundSize(-1))

	require.Equal(t, 3, frag.Count(1350, 515))
	require.Equal(t, 2, frag.Count(1024, 512))
	require.Equal(t, 0, frag.Count(1024, 4))
}
