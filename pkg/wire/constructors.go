package wire

// Syn builds a connection-opening SYN packet.
func Syn(seq uint32) *Packet {
	return &Packet{Type: TypeSYN, Sequence: seq}
}

// SynAck builds the reply to a SYN.
func SynAck(seq, ack uint32) *Packet {
	return &Packet{Type: TypeSYNACK, Sequence: seq, Ack: ack}
}

// Ack builds a pure acknowledgment carrying the receiver's advertised window.
func Ack(seq, ack uint32, window uint16) *Packet {
	return &Packet{Type: TypeACK, Sequence: seq, Ack: ack, Window: window}
}

// Data builds a sequenced data packet.
func Data(seq, ack uint32, payload []byte, window uint16) *Packet {
	return &Packet{Type: TypeDATA, Sequence: seq, Ack: ack, Window: window, Payload: payload}
}

// Fin builds a connection-closing FIN packet.
func Fin(seq uint32) *Packet {
	return &Packet{Type: TypeFIN, Sequence: seq}
}

// FinAck builds the ACK response to a FIN.
func FinAck(seq, ack uint32) *Packet {
	return &Packet{Type: TypeFINACK, Sequence: seq, Ack: ack}
}

// Rst builds a connection-reset packet.
func Rst(seq uint32) *Packet {
	return &Packet{Type: TypeRST, Sequence: seq}
}

// Ping builds a keepalive probe.
func Ping(seq uint32) *Packet {
	return &Packet{Type: TypePING, Sequence: seq}
}

// Pong builds the reply to a PING.
func Pong(seq, ack uint32) *Packet {
	return &Packet{Type: TypePONG, Sequence: seq, Ack: ack}
}

// Fragment builds one chunk of a split message.
func Fragment(seq, fragID uint32, index, total uint16, payload []byte) *Packet {
	return &Packet{
		Type:          TypeFRAGMENT,
		Sequence:      seq,
		FragmentID:    fragID,
		FragmentIndex: index,
		FragmentTotal: total,
		Payload:       payload,
	}
}

// FragmentAck acknowledges receipt of a single fragment.
func FragmentAck(seq, ack, fragID uint32, index uint16) *Packet {
	return &Packet{
		Type:          TypeFRAGMENTACK,
		Sequence:      seq,
		Ack:           ack,
		FragmentID:    fragID,
		FragmentIndex: index,
	}
}

// Nack negatively acknowledges a sequence number, requesting retransmission.
func Nack(seq, ack uint32) *Packet {
	return &Packet{Type: TypeNACK, Sequence: seq, Ack: ack}
}
