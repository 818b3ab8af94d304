// File: subprotocol/envelope.go
// Package subprotocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The jsonRWS message envelope {id, from, to, cmd, payload}.

package subprotocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrBadEnvelope marks a message that does not have the jsonRWS shape.
var ErrBadEnvelope = errors.New("message doesn't have valid jsonRWS subprotocol format")

var (
	allowedFields  = []string{"id", "from", "to", "cmd", "payload"}
	requiredFields = []string{"id", "from", "to", "cmd"}
)

// Envelope is one application message.
type Envelope struct {
	ID      int64  `json:"id"`
	From    int64  `json:"from"`
	To      Target `json:"to"`
	Cmd     string `json:"cmd"`
	Payload any    `json:"payload,omitempty"`
}

// TargetKind tells which form the "to" field took on the wire.
type TargetKind int

const (
	TargetID TargetKind = iota
	TargetList
	TargetName
)

// Target is the "to" field: a connection id, a list of ids, or a room name.
// Zero value is the id 0 (broadcast / server).
type Target struct {
	Kind TargetKind
	ID   int64
	IDs  []int64
	Name string
}

// ToID returns a single-id target.
func ToID(id int64) Target { return Target{Kind: TargetID, ID: id} }

// ToIDs returns a list target.
func ToIDs(ids ...int64) Target { return Target{Kind: TargetList, IDs: ids} }

// ToRoom returns a room-name target.
func ToRoom(name string) Target { return Target{Kind: TargetName, Name: name} }

// AsID resolves the target to one id. Numeric strings are accepted.
func (t Target) AsID() (int64, bool) {
	switch t.Kind {
	case TargetID:
		return t.ID, true
	case TargetName:
		id, err := strconv.ParseInt(t.Name, 10, 64)
		return id, err == nil
	case TargetList:
		if len(t.IDs) == 1 {
			return t.IDs[0], true
		}
	}
	return 0, false
}

// AsIDs resolves the target to a list of ids.
func (t Target) AsIDs() ([]int64, bool) {
	if t.Kind == TargetList {
		return t.IDs, true
	}
	id, ok := t.AsID()
	if !ok {
		return nil, false
	}
	return []int64{id}, true
}

// MarshalJSON encodes the target in the form it was built with.
func (t Target) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TargetList:
		ids := t.IDs
		if ids == nil {
			ids = []int64{}
		}
		return json.Marshal(ids)
	case TargetName:
		return json.Marshal(t.Name)
	}
	return []byte(strconv.FormatInt(t.ID, 10)), nil
}

// UnmarshalJSON accepts a number, an array of numbers, a string or null.
func (t *Target) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = Target{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ToRoom(s)
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		ids := make([]int64, 0, len(raw))
		for _, r := range raw {
			id, err := parseID(r)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		*t = ToIDs(ids...)
	default:
		id, err := parseID(data)
		if err != nil {
			return err
		}
		*t = ToID(id)
	}
	return nil
}

// parseID reads an integer id from a JSON number or numeric string.
func parseID(data json.RawMessage) (int64, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %s", data)
	}
	return int64(f), nil
}

// ParseEnvelope decodes and validates one jsonRWS message. Keys must be a
// subset of {id, from, to, cmd, payload} and include id, from, to and cmd.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadEnvelope, data, err)
	}
	if err := checkFields(keysOf(raw)); err != nil {
		return nil, fmt.Errorf("%w: %q", err, data)
	}

	env := &Envelope{}
	var err error
	if env.ID, err = parseID(raw["id"]); err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrBadEnvelope, err)
	}
	if env.From, err = parseID(raw["from"]); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrBadEnvelope, err)
	}
	if err = env.To.UnmarshalJSON(raw["to"]); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrBadEnvelope, err)
	}
	if err = json.Unmarshal(raw["cmd"], &env.Cmd); err != nil {
		return nil, fmt.Errorf("%w: cmd: %v", ErrBadEnvelope, err)
	}
	if p, ok := raw["payload"]; ok {
		dec := json.NewDecoder(bytes.NewReader(p))
		dec.UseNumber()
		if err = dec.Decode(&env.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrBadEnvelope, err)
		}
	}
	return env, nil
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func checkFields(keys []string) error {
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !contains(allowedFields, k) {
			return fmt.Errorf("%w: unexpected field %q", ErrBadEnvelope, k)
		}
		have[k] = true
	}
	for _, k := range requiredFields {
		if !have[k] {
			return fmt.Errorf("%w: missing field %q", ErrBadEnvelope, k)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Reply returns a copy of e with payload replaced, used for echoes.
func (e *Envelope) Reply(payload any) *Envelope {
	cp := *e
	cp.Payload = payload
	return &cp
}

// PayloadString returns the payload when it is a JSON string.
func (e *Envelope) PayloadString() (string, bool) {
	s, ok := e.Payload.(string)
	return s, ok
}
