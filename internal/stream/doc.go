// Package stream implements the newline-delimited JSON push protocol used by
// the streaming conversation endpoints.
//
// Each line is one Record:
//
//	{"type":"chunk","content":"Echo: "}
//	{"type":"complete","message":{"id":"...","role":"assistant","content":"Echo: hi","createdAt":"..."}}
//	{"type":"error","error":"unable to generate reply"}
//
// A stream carries any number of chunk records followed by exactly one
// complete record, or by one error record when production fails. Serve
// drives an Emitter through that sequence and always closes it.
package stream
