package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandName is the admin command every request is routed through on the node.
const CommandName = "ncc-command"

// Values for data.cmd understood by the node's admin handler.
const (
	CmdWhoAmI          = "whoami"
	CmdPing            = "ping-peerid"
	CmdPeerRouting     = "peer-routing"
	CmdPrivatePing     = "private-ping"
	CmdCreateStream    = "libp2p-createStream"
	CmdDumpDHT         = "dump-dht"
	CmdDHTForceRefresh = "dht-forcerefresh"
	CmdAddPeer         = "libp2p-addPeer"
	CmdPublishTopic    = "publish-topic-data"
	CmdPublishBytes    = "publish-bytes"
	CmdAllTopics       = "getAllTopics"
	CmdLibP2P          = "libp2p"
)

// Param is one named argument of a command.
type Param struct {
	Key   string
	Value any
}

// Command is the data object of an admin request. Params are serialized after
// "cmd" in the order they were given.
type Command struct {
	Cmd    string
	Params []Param
}

// NewCommand builds a command whose params serialize in the given order.
func NewCommand(cmd string, params ...Param) Command {
	return Command{Cmd: cmd, Params: params}
}

// MarshalJSON keeps param order stable, which a map would not.
func (c Command) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"cmd":`)
	v, err := json.Marshal(c.Cmd)
	if err != nil {
		return nil, err
	}
	buf.Write(v)
	for _, p := range c.Params {
		if p.Key == "cmd" {
			return nil, fmt.Errorf("param key %q is reserved", p.Key)
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal param %s: %w", p.Key, err)
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Request is the full POST body.
type Request struct {
	CommandName string  `json:"commandName"`
	Data        Command `json:"data"`
}

// Payload returns the serialized request body for the command.
func (c Command) Payload() ([]byte, error) {
	return json.Marshal(Request{CommandName: CommandName, Data: c})
}

func peerCommand(cmd, peerID string) Command {
	return NewCommand(cmd, Param{"peerid", peerID})
}
