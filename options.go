package spnet

import (
	"fmt"
	"time"
)

// Option name constants, per spec.md section 4.7 and extended in
// SPEC_FULL.md. Names match the domain precedent (the vendored
// mangos module's option constants, confirmed from its test suite)
// rather than inventing a parallel vocabulary.
const (
	OptionRecvDeadline     = "recv-deadline"
	OptionSendDeadline     = "send-deadline"
	OptionRecvTimeout      = "recv-timeout"
	OptionSendTimeout      = "send-timeout"
	OptionReadQLen         = "read-q-len"
	OptionWriteQLen        = "write-q-len"
	OptionRecvMaxSize      = "recv-max-size"
	OptionReconnectTime    = "reconnect-time"
	OptionMaxReconnectTime = "max-reconnect-time"
	OptionDialAsynch       = "dial-asynch"
	OptionRaw              = "raw"
	OptionProtocol         = "protocol"
	OptionProtocolName     = "protocol-name"
	OptionPeer             = "peer"
	OptionPeerName         = "peer-name"
	OptionSocketName       = "socket-name"
	OptionTCPNoDelay       = "tcp-nodelay"
	OptionKeepAlive        = "keep-alive"
	OptionKeepAliveTime    = "keep-alive-time"
	OptionTLSConfig        = "tls-config"
	OptionTLSCAFile        = "tls-ca-file"
	OptionTLSCertKeyFile   = "tls-cert-key-file"
	OptionTLSAuthMode      = "tls-auth-mode"
	OptionTLSServerName    = "tls-server-name"
	OptionTLSCAString      = "tls-ca-string"
	OptionLocalAddr        = "local-address"
	OptionRemoteAddr       = "remote-address"
	OptionBestEffort       = "best-effort"

	// Protocol-specific options.
	OptionRetryTime    = "req:resend-time" // Req0 resend_time
	OptionSubscribe    = "sub:subscribe"
	OptionUnsubscribe  = "sub:unsubscribe"
	OptionSurveyTime   = "surveyor:survey-time"
	OptionPolyamorous  = "pair1:polyamorous"
)

// OptionType identifies the expected Go type behind an option value: a
// typed-field-with-bounds idiom generalized from a fixed struct to a
// dynamically addressed name->value map (spec.md section 4.7 requires
// options be addressable by name on sockets, listeners, dialers, and
// pipes alike).
type OptionType int

const (
	OptInt32 OptionType = iota
	OptSize
	OptDuration
	OptBool
	OptString
	OptPointer
	OptSockAddr
)

// optionSpec describes one recognized option: its type and an
// optional validator invoked on Set.
type optionSpec struct {
	typ      OptionType
	readOnly bool
	validate func(interface{}) error
}

// Options is a typed, validated name->value map shared by Socket,
// Dialer, Listener, and Pipe. Reads are copy-on-read (spec.md section
// 5): GetOption never returns a value that could be mutated out from
// under the caller by a concurrent SetOption, since every stored value
// here is itself immutable from the caller's perspective (ints,
// durations, bools, strings, or opaque pointers the caller already
// owns).
type Options struct {
	specs  map[string]optionSpec
	values map[string]interface{}
}

// NewOptions builds an empty option table.
func NewOptions() *Options {
	return &Options{
		specs:  make(map[string]optionSpec),
		values: make(map[string]interface{}),
	}
}

// Register declares that name is a recognized option of the given
// type, with a default value and optional validator. Objects call this
// once per supported option at construction time; SetOption on an
// unregistered name returns ErrNotSupported per spec.md section 4.7.
func (o *Options) Register(name string, typ OptionType, def interface{}, validate func(interface{}) error) {
	o.specs[name] = optionSpec{typ: typ, validate: validate}
	o.values[name] = def
}

// RegisterReadOnly declares a read-only option (protocol id, peer
// identity, addresses, raw flag, ...).
func (o *Options) RegisterReadOnly(name string, typ OptionType, val interface{}) {
	o.specs[name] = optionSpec{typ: typ, readOnly: true}
	o.values[name] = val
}

// Set validates and stores v under name.
func (o *Options) Set(name string, v interface{}) error {
	spec, ok := o.specs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupported, name)
	}
	if spec.readOnly {
		return fmt.Errorf("%w: %s is read-only", ErrNotSupported, name)
	}
	if err := checkType(spec.typ, v); err != nil {
		return err
	}
	if spec.validate != nil {
		if err := spec.validate(v); err != nil {
			return err
		}
	}
	o.values[name] = v
	return nil
}

// setReadOnly is used internally (e.g. by the dispatcher) to update a
// read-only option's backing value — peer/local address, negotiated
// protocol id — without going through user-facing validation.
func (o *Options) setReadOnly(name string, v interface{}) {
	o.values[name] = v
}

// Get returns the current value of name.
func (o *Options) Get(name string) (interface{}, error) {
	if _, ok := o.specs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, name)
	}
	return o.values[name], nil
}

// GetDuration is a convenience accessor used internally by protocol
// and core code for the many duration_ms options.
func (o *Options) GetDuration(name string) time.Duration {
	v, err := o.Get(name)
	if err != nil {
		return 0
	}
	d, _ := v.(time.Duration)
	return d
}

// GetBool is a convenience accessor for bool options.
func (o *Options) GetBool(name string) bool {
	v, err := o.Get(name)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt is a convenience accessor for int32/size_t options.
func (o *Options) GetInt(name string) int {
	v, err := o.Get(name)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	}
	return 0
}

func checkType(typ OptionType, v interface{}) error {
	ok := false
	switch typ {
	case OptInt32:
		_, ok = v.(int32)
		if !ok {
			_, ok = v.(int)
		}
	case OptSize:
		_, ok = v.(int)
	case OptDuration:
		_, ok = v.(time.Duration)
	case OptBool:
		_, ok = v.(bool)
	case OptString:
		_, ok = v.(string)
	case OptPointer:
		ok = true // opaque by design (tls config, etc.)
	case OptSockAddr:
		_, ok = v.(Addr)
	}
	if !ok {
		return ErrBadValue
	}
	return nil
}
