// Package proxy is the HTTP connection manager: the read filter that sits
// on every downstream connection and drives a request through the codec,
// header mutation, routing, load balancing and an upstream connection, then
// streams the response back.
//
// One request is in flight per downstream connection at a time: the server
// codec pauses after each complete request and the manager re-dispatches
// buffered bytes only after the response finishes. Routing is
// longest-prefix over :path onto named clusters; a request with no route
// gets a local 404, and a cluster with no pickable host gets a local 503.
// Every exchange, including local replies, emits one access log entry.
//
// Retries, timeouts and outlier ejection are intentionally absent; this
// manager is the thin glue over the subsystems that do the real work.
package proxy
