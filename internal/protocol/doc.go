// Package protocol defines the messages exchanged between the dispatcher and
// the engine.
//
// Both directions are closed tagged variants: Command (dispatcher -> engine)
// and Event (engine -> dispatcher). In-process transports pass the Go values
// directly; stream transports use EncodeX/DecodeX, which put a "type" member
// on every JSON object:
//
//	{"type":"classify","reqId":3,"payload":{"question":"¿Qué es el ADN?"}}
//	{"type":"progress","reqId":4,"status":"gen","tokens":2,"max":64,"percent":3.1,"secs":0.4}
//	{"type":"classified","reqId":3,"category":"biologia"}
//
// Decoding happens once, at the channel boundary. Anything that does not fit
// the schema is returned as a *ProtocolError and must be logged and skipped by
// the reader, never allowed to stop demultiplexing.
package protocol
