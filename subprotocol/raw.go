// File: subprotocol/raw.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package subprotocol

import (
	"encoding/json"

	"github.com/momentics/hioload-rws/session"
)

// Raw passes payloads through untouched and executes no commands. Outgoing
// strings are sent as is, other values are JSON-encoded.
type Raw struct{}

var _ Subprotocol = Raw{}

func (Raw) Name() string { return NameRaw }

func (Raw) Incoming(msg string) (any, error) { return msg, nil }

func (Raw) Outgoing(msg any) (string, error) {
	switch m := msg.(type) {
	case string:
		return m, nil
	case []byte:
		return string(m), nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (Raw) Process(any, *session.Conn, Deps) error { return nil }
