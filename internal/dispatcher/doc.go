// Package dispatcher is the public entry point for classify and answer
// requests. A Dispatcher lazily launches a single engine, multiplexes any
// number of concurrent requests over one event channel, and demultiplexes
// replies through a correlation table keyed by request id.
//
// Every request has a watchdog. Tagged progress, log and heartbeat events
// re-arm it; a request that sees no such event for its timeout window fails
// with a timeout error. Each request settles exactly once: events for ids
// that are unknown or already settled are dropped.
//
// Startup is single-flight. Callers arriving while the engine warms up wait
// on the same attempt; a startup failure rejects all of them and the next
// request launches a fresh engine. Losing the channel fails every pending
// request the same way.
package dispatcher
