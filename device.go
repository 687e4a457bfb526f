package spnet

// Device forwards every message received on s1 to s2 and vice versa,
// until either socket is closed or forwarding fails, and returns the
// first error seen. Both sockets apply their protocol's normal send and
// recv rules (this module has no raw mode), so it relays between
// sockets whose protocol allows a send right after a recv, such as
// Pair or Bus; a pair of Rep0 sockets cannot be bridged this way.
func Device(s1, s2 *Socket) error {
	errCh := make(chan error, 2)
	go forward(s1, s2, errCh)
	go forward(s2, s1, errCh)
	return <-errCh
}

func forward(from, to *Socket, errCh chan<- error) {
	for {
		m, err := from.RecvMsg()
		if err != nil {
			errCh <- err
			return
		}
		if err := to.SendMsg(m); err != nil {
			errCh <- err
			return
		}
	}
}
