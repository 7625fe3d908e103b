package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowprobe/flowprobe/internal/console"
	"github.com/flowprobe/flowprobe/internal/explore"
	"github.com/flowprobe/flowprobe/internal/identity"
)

// nodeFunc runs one admin command against the node at ip. args excludes the
// node name.
type nodeFunc func(ctx context.Context, reg *identity.Registry, ip string, args []string) (any, error)

// nodeCommand builds a subcommand whose first argument names the target node.
func (a *app) nodeCommand(use, short string, extra int, fn nodeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(extra + 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// only commands that define --resolve pay for a resolution pass
			resolve, _ := cmd.Flags().GetBool("resolve")
			reg, err := a.registry(ctx, resolve)
			if err != nil {
				return err
			}
			ip, err := reg.IP(args[0])
			if err != nil {
				return err
			}
			res, err := fn(ctx, reg, ip, args[1:])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), res)
		},
	}
}

// peerArg resolves a node name or literal peer ID. A node name costs one
// whoami call on that node rather than a full resolution pass.
func (a *app) peerArg(ctx context.Context, reg *identity.Registry, arg string) (string, error) {
	ip, ok := reg.Topology().IP(arg)
	if !ok {
		return reg.ResolvePeer(arg)
	}
	id, err := a.admin.WhoAmI(ctx, ip)
	if err != nil {
		return "", fmt.Errorf("resolve peer %s: %w", arg, err)
	}
	return id.PeerID, nil
}

func adminCommands(a *app) []*cobra.Command {
	dht := a.nodeCommand("dht-peers <node>", "Dump the peer IDs in the node's DHT", 0,
		func(ctx context.Context, reg *identity.Registry, ip string, _ []string) (any, error) {
			peers, err := a.admin.DHTPeers(ctx, ip)
			if err != nil {
				return nil, err
			}
			return dhtRows(reg, peers), nil
		})
	dht.Flags().Bool("resolve", false, "resolve all role identities to name the peers")

	return []*cobra.Command{
		a.nodeCommand("whoami <node>", "Show the node's peer ID and flow ID", 0,
			func(ctx context.Context, _ *identity.Registry, ip string, _ []string) (any, error) {
				return a.admin.WhoAmI(ctx, ip)
			}),
		a.nodeCommand("ping <node> <peer>", "Ping a peer from the node", 1,
			func(ctx context.Context, reg *identity.Registry, ip string, args []string) (any, error) {
				peer, err := a.peerArg(ctx, reg, args[0])
				if err != nil {
					return nil, err
				}
				return a.admin.Ping(ctx, ip, peer)
			}),
		a.nodeCommand("peer-routing <node> <peer>", "Look up a peer through the node's peer routing", 1,
			func(ctx context.Context, reg *identity.Registry, ip string, args []string) (any, error) {
				peer, err := a.peerArg(ctx, reg, args[0])
				if err != nil {
					return nil, err
				}
				return a.admin.PeerRouting(ctx, ip, peer)
			}),
		a.nodeCommand("private-ping <node> <peer>", "Ping a peer over the node's private protocol", 1,
			func(ctx context.Context, reg *identity.Registry, ip string, args []string) (any, error) {
				peer, err := a.peerArg(ctx, reg, args[0])
				if err != nil {
					return nil, err
				}
				return a.admin.PrivatePing(ctx, ip, peer)
			}),
		a.nodeCommand("create-stream <node> <peer>", "Open a libp2p stream from the node to a peer", 1,
			func(ctx context.Context, reg *identity.Registry, ip string, args []string) (any, error) {
				peer, err := a.peerArg(ctx, reg, args[0])
				if err != nil {
					return nil, err
				}
				return a.admin.CreateStream(ctx, ip, peer)
			}),
		dht,
		a.nodeCommand("dht-refresh <node>", "Force a DHT refresh on the node", 0,
			func(ctx context.Context, _ *identity.Registry, ip string, _ []string) (any, error) {
				return a.admin.DHTForceRefresh(ctx, ip)
			}),
		a.nodeCommand("add-peer <node> <multiaddr>", "Add a peer (/ip4/.../tcp/.../p2p/<id>) to the node", 1,
			func(ctx context.Context, _ *identity.Registry, ip string, args []string) (any, error) {
				if _, err := identity.ParsePeerInfo(args[0]); err != nil {
					return nil, err
				}
				return a.admin.AddPeer(ctx, ip, args[0])
			}),
		a.nodeCommand("publish <node> <topic> <hex>", "Publish hex data on a topic", 2,
			func(ctx context.Context, _ *identity.Registry, ip string, args []string) (any, error) {
				return a.admin.Publish(ctx, ip, args[0], args[1])
			}),
		a.nodeCommand("publish-bytes <node> <hex>", "Publish raw hex bytes", 1,
			func(ctx context.Context, _ *identity.Registry, ip string, args []string) (any, error) {
				return a.admin.PublishBytes(ctx, ip, args[0])
			}),
		a.nodeCommand("topics <node>", "List the topics the node is subscribed to", 0,
			func(ctx context.Context, _ *identity.Registry, ip string, _ []string) (any, error) {
				return a.admin.AllTopics(ctx, ip)
			}),
		a.nodeCommand("libp2p <node>", "Show the node's libp2p listen addresses", 0,
			func(ctx context.Context, _ *identity.Registry, ip string, _ []string) (any, error) {
				return a.admin.LibP2PAddr(ctx, ip)
			}),
	}
}

func newNodesCmd(a *app) *cobra.Command {
	var resolve, check bool
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List testbed nodes with their addresses and identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg, err := a.registry(ctx, resolve)
			if err != nil {
				return err
			}
			rows := nodeRows(reg)
			if check {
				timeout := a.cfg.RequestTimeout
				if timeout <= 0 {
					timeout = 2 * time.Second
				}
				for i := range rows {
					ok := a.admin.Reachable(ctx, rows[i].IP, timeout) == nil
					rows[i].Reachable = &ok
				}
			}
			return a.render(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", true, "query whoami on every role node")
	cmd.Flags().BoolVar(&check, "check", false, "check that each admin port accepts connections")
	return cmd
}

func newExploreCmd(a *app) *cobra.Command {
	var p explore.Params
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run the exploratory sequence: dump DHT, ping peers, publish, private-ping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := a.exploreParams(cmd, p)
			ctx := cmd.Context()
			reg, err := a.registry(ctx, true)
			if err != nil {
				return err
			}
			var progress io.Writer = cmd.OutOrStdout()
			if a.flags.output == "json" {
				progress = io.Discard
			}
			report, err := explore.New(a.admin, reg, progress).Run(ctx, params)
			if err != nil {
				return err
			}
			if a.flags.output == "json" {
				return a.render(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d peers reachable from %s\n", report.Reachable(), len(report.Peers), report.From)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&p.From, "from", "", "node to explore from")
	fs.StringVar(&p.PrivatePingTarget, "private-ping-target", "", "node to private-ping at the end")
	fs.StringVar(&p.Topic, "topic", "", "topic for the publish step")
	fs.StringVar(&p.Data, "data", "", "hex payload for the publish steps")
	return cmd
}

// exploreParams starts from the configured defaults and applies the flags
// that were set.
func (a *app) exploreParams(cmd *cobra.Command, p explore.Params) explore.Params {
	out := explore.Params{
		From:              a.cfg.Explore.From,
		PrivatePingTarget: a.cfg.Explore.PrivatePingTarget,
		Topic:             a.cfg.Explore.Topic,
		Data:              a.cfg.Explore.Data,
	}
	fs := cmd.Flags()
	if fs.Changed("from") {
		out.From = p.From
	}
	if fs.Changed("private-ping-target") {
		out.PrivatePingTarget = p.PrivatePingTarget
	}
	if fs.Changed("topic") {
		out.Topic = p.Topic
	}
	if fs.Changed("data") {
		out.Data = p.Data
	}
	return out
}

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Resolve identities and open an interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg, err := a.registry(ctx, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, %d identities (type help)\n", len(reg.Names()), reg.Len())
			return console.NewCLI(a.admin, reg, cmd.InOrStdin(), cmd.OutOrStdout(), nil).Run(ctx)
		},
	}
}
