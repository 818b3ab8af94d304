// Package subprotocol
// Author: momentics <momentics@gmail.com>
//
// Command dispatch layered on frame payloads. Two variants exist: jsonRWS,
// which validates {id, from, to, cmd, payload} envelopes and executes the
// socket/*, room/*, route and info/* commands against the registry and the
// transfer engine, and raw, which passes strings through.

package subprotocol
