// Package explore runs the exploratory probe sequence against one node: dump
// its DHT peers, ping each, publish a test payload and private-ping a second
// node.
package explore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/identity"
	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/metrics"
)

// Client is the set of admin calls the sequence issues.
type Client interface {
	DHTPeers(ctx context.Context, ip string) ([]string, error)
	Ping(ctx context.Context, ip, peerID string) (admin.PingResult, error)
	Publish(ctx context.Context, ip, topic, hexData string) (admin.Output, error)
	PublishBytes(ctx context.Context, ip, hexData string) (admin.Output, error)
	PrivatePing(ctx context.Context, ip, peerID string) (admin.PingResult, error)
}

// Params selects the nodes and payload. Empty Topic skips the topic publish,
// empty Data skips both publishes and empty PrivatePingTarget skips the
// private ping.
type Params struct {
	From              string
	PrivatePingTarget string
	Topic             string
	Data              string
}

// PeerPing is the outcome of pinging one DHT peer.
type PeerPing struct {
	PeerID string           `json:"peer_id"`
	Node   string           `json:"node,omitempty"`
	Result admin.PingResult `json:"result"`
}

// Report collects everything the sequence observed.
type Report struct {
	From              string            `json:"from"`
	FromIP            string            `json:"from_ip"`
	Peers             []PeerPing        `json:"peers"`
	Publish           admin.Output      `json:"publish,omitempty"`
	PublishBytes      admin.Output      `json:"publish_bytes,omitempty"`
	PrivatePingTarget string            `json:"private_ping_target,omitempty"`
	PrivatePing       *admin.PingResult `json:"private_ping,omitempty"`
}

// Driver runs the sequence, writing a line per step to out.
type Driver struct {
	client Client
	reg    *identity.Registry
	out    io.Writer
}

// New returns a Driver. out may be io.Discard.
func New(client Client, reg *identity.Registry, out io.Writer) *Driver {
	if out == nil {
		out = io.Discard
	}
	return &Driver{client: client, reg: reg, out: out}
}

// Run executes the sequence. Any failed command aborts it.
func (d *Driver) Run(ctx context.Context, p Params) (*Report, error) {
	ip, err := d.reg.IP(p.From)
	if err != nil {
		return nil, err
	}
	rep := &Report{From: p.From, FromIP: ip, Peers: []PeerPing{}}
	log := logging.Get().With().Str("node", p.From).Str("ip", ip).Logger()

	peers, err := d.client.DHTPeers(ctx, ip)
	if err != nil {
		return nil, err
	}
	log.Info().Int("peers", len(peers)).Msg("dumped dht peers")

	for _, peer := range peers {
		res, err := d.client.Ping(ctx, ip, peer)
		if err != nil {
			return nil, err
		}
		pp := PeerPing{PeerID: peer, Result: res}
		if name, ok := d.reg.NameForPeer(peer); ok {
			pp.Node = name
		}
		rep.Peers = append(rep.Peers, pp)
		fmt.Fprintf(d.out, "Ping from %s(%s) to peer_id:%s: %s %s\n", p.From, ip, peer, res, pp.Node)
	}

	if p.Data != "" && p.Topic != "" {
		out, err := d.client.Publish(ctx, ip, p.Topic, p.Data)
		if err != nil {
			return nil, err
		}
		rep.Publish = out
		fmt.Fprintf(d.out, "publish %s: %s\n", p.Topic, out)
	}
	if p.Data != "" {
		out, err := d.client.PublishBytes(ctx, ip, p.Data)
		if err != nil {
			return nil, err
		}
		rep.PublishBytes = out
		fmt.Fprintf(d.out, "publish-bytes: %s\n", out)
	}

	if p.PrivatePingTarget != "" {
		peer, err := d.reg.PeerID(p.PrivatePingTarget)
		if err != nil {
			return nil, err
		}
		res, err := d.client.PrivatePing(ctx, ip, peer)
		if err != nil {
			return nil, err
		}
		rep.PrivatePingTarget = p.PrivatePingTarget
		rep.PrivatePing = &res
		fmt.Fprintf(d.out, "private-ping %s(%s): %s\n", p.PrivatePingTarget, peer, res)
	}

	metrics.SetLastRun(time.Now())
	return rep, nil
}

// Reachable counts the peers that answered the ping.
func (r *Report) Reachable() int {
	n := 0
	for _, p := range r.Peers {
		if p.Result.Reachable() {
			n++
		}
	}
	return n
}
