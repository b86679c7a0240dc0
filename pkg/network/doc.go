// Package network implements the connection layer of the data plane:
// non-blocking socket state machines, the read/write filter pipeline,
// listeners and client connections.
//
// A Connection owns its fd, its read and write buffers and its filter
// chain, and lives entirely on one event.Dispatcher. Reads drain the socket
// into the read buffer until EAGAIN and then run the read filter chain;
// writes run the write filter chain, land in the write buffer and drain on
// write readiness. Backpressure is cooperative: ReadDisable(true) keeps the
// socket registered (so remote close is still detected promptly) but stops
// dispatching read filters; ReadDisable(false) re-dispatches buffered bytes
// through a zero-delay timer because no new network event may arrive to
// trigger it naturally.
//
// Connections are in one of three states: Open from construction, Closing
// after Close(FlushWrite) while buffered output drains, and Closed after
// Close(NoFlush), peer EOF or a fatal socket error. Exactly one of
// LocalClose or RemoteClose is raised per connection.
package network
