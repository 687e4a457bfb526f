// Package spnet implements the nanomsg-family scalability protocols —
// Pair, Request/Reply, Publish/Subscribe, Pipeline, Surveyor/
// Respondent, and Bus — over pluggable transports (tcp, tls+tcp, ipc,
// inproc, abstract, ws/wss).
//
// A Socket is built by one of the protocol packages (protocol/pair,
// protocol/reqrep, protocol/pubsub, protocol/pipeline, protocol/survey,
// protocol/bus) and then Dial or Listen is called on it to attach
// transport endpoints:
//
//	s := pair.NewSocket(nil)
//	if _, err := s.Listen("tcp://127.0.0.1:40899"); err != nil { ... }
//	if err := s.Send([]byte("hello")); err != nil { ... }
//
// Messages may also be built and sent directly via Message/SendMsg/
// RecvMsg when header or pipe-affinity control is needed.
package spnet
