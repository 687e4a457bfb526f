package spnet

import "time"

// Protocol is implemented by each protocol state machine package
// (protocol/pair, protocol/reqrep, protocol/pubsub, protocol/pipeline,
// protocol/survey, protocol/bus) and driven uniformly by Socket: the
// socket owns pipe lifecycle and option storage, the Protocol owns the
// receive rule, send rule, and header transform specific to it, per
// spec.md section 4.6.
type Protocol interface {
	// Info reports this protocol's identity and its expected peer.
	Info() ProtocolInfo

	// AddPipe is called once a pipe has passed the pre-add callback
	// chain and been indexed by the socket, before the post-add
	// callbacks run; the protocol should start consuming p.RecvChan()
	// if its receive rule needs to and track p for its send rule.
	AddPipe(p *Pipe) error

	// RemovePipe is called after a pipe has been evicted from the
	// socket; the protocol must stop referencing p.
	RemovePipe(p *Pipe)

	// SendMsg executes this protocol's send rule against m, blocking
	// until deadline (the zero Time means block forever).
	SendMsg(m *Message, deadline time.Time) error

	// RecvMsg executes this protocol's receive rule, blocking until
	// deadline.
	RecvMsg(deadline time.Time) (*Message, error)

	// SetOption/GetOption handle protocol-specific options (e.g.
	// sub:subscribe, req:resend-time); unrecognized names return
	// ErrNotSupported.
	SetOption(name string, v interface{}) error
	GetOption(name string) (interface{}, error)

	// Close releases any protocol-owned resources (e.g. outstanding
	// survey/request timers).
	Close()
}

// ProtocolInfo identifies a protocol and the peer protocol it talks
// to, per the nanomsg scalability-protocols numbering the domain
// precedent (the vendored mangos module, confirmed from its test
// suite's mangos.Proto* constants) uses.
type ProtocolInfo struct {
	Self     uint16
	Peer     uint16
	SelfName string
	PeerName string
}

// Protocol numbers, matching the standard nanomsg/mangos assignment.
const (
	ProtoPair       uint16 = 1
	ProtoPub        uint16 = 32
	ProtoSub        uint16 = 33
	ProtoReq        uint16 = 48
	ProtoRep        uint16 = 49
	ProtoPush       uint16 = 80
	ProtoPull       uint16 = 81
	ProtoSurveyor   uint16 = 98
	ProtoRespondent uint16 = 99
	ProtoBus        uint16 = 112
)
