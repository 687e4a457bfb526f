// Package pubsub implements the Publish/Subscribe scalability
// protocols: Pub0 broadcasts every sent body to all live pipes, and
// Sub0 delivers only bodies that start with one of its subscribed
// prefixes, per spec.md section 4.6.3.
package pubsub
