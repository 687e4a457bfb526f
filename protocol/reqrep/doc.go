// Package reqrep implements the Request/Reply scalability protocols:
// Req0, a stateful client that resends an unanswered request on a
// different pipe after resend_time, and Rep0, a stateful server that
// stashes a request's routing header and reattaches it to the
// matching reply, per spec.md section 4.6.2. Both support opening
// additional contexts so several request/reply exchanges can be in
// flight concurrently on one socket.
package reqrep
