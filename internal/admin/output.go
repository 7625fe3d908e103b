package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Output is the raw "output" field of an admin response. Its shape depends on
// the command.
type Output json.RawMessage

// String renders JSON strings unquoted and anything else as compact JSON.
func (o Output) String() string {
	var s string
	if err := json.Unmarshal(o, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, o); err != nil {
		return string(o)
	}
	return buf.String()
}

// IsString reports whether the output is a bare JSON string. The node answers
// with a string when it cannot run a command.
func (o Output) IsString() bool {
	b := bytes.TrimSpace(o)
	return len(b) > 0 && b[0] == '"'
}

// IsNull reports whether the output is empty or JSON null.
func (o Output) IsNull() bool {
	b := bytes.TrimSpace(o)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// Decode unmarshals the output into v.
func (o Output) Decode(v any) error {
	return json.Unmarshal(o, v)
}

// MarshalJSON lets an Output be embedded in reports as-is.
func (o Output) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return o, nil
}

// Identity is the whoami answer.
type Identity struct {
	PeerID string `json:"peer_id"`
	FlowID string `json:"flow_id"`
}

// PingResult is the answer to ping-peerid and private-ping. When the node
// could not reach the peer it replies with a message instead of a result.
type PingResult struct {
	Result string `json:"result,omitempty"`
	Time   string `json:"time,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Reachable reports whether the ping got a response.
func (p PingResult) Reachable() bool { return p.Error == "" }

func (p PingResult) String() string {
	if !p.Reachable() {
		return "unreachable: " + p.Error
	}
	return fmt.Sprintf("%s (%s)", p.Result, p.Time)
}

func decodePing(cmd string, out Output) (PingResult, error) {
	if out.IsString() {
		return PingResult{Error: out.String()}, nil
	}
	if out.IsNull() {
		return PingResult{}, missingField(cmd, "result")
	}
	var p PingResult
	if err := out.Decode(&p); err != nil {
		return PingResult{}, fmt.Errorf("decode %s output: %w", cmd, err)
	}
	if p.Result == "" {
		return PingResult{}, missingField(cmd, "result")
	}
	return p, nil
}
