// Package console is a line-oriented REPL over a resolved registry. Each line
// issues at most one admin command.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/identity"
)

// Client is the admin surface reachable from the console.
type Client interface {
	WhoAmI(ctx context.Context, ip string) (admin.Identity, error)
	Ping(ctx context.Context, ip, peerID string) (admin.PingResult, error)
	PeerRouting(ctx context.Context, ip, peerID string) (admin.Output, error)
	PrivatePing(ctx context.Context, ip, peerID string) (admin.PingResult, error)
	CreateStream(ctx context.Context, ip, peerID string) (admin.Output, error)
	DHTPeers(ctx context.Context, ip string) ([]string, error)
	DHTForceRefresh(ctx context.Context, ip string) (admin.Output, error)
	AddPeer(ctx context.Context, ip, peerInfo string) (admin.Output, error)
	Publish(ctx context.Context, ip, topic, hexData string) (admin.Output, error)
	PublishBytes(ctx context.Context, ip, hexData string) (admin.Output, error)
	AllTopics(ctx context.Context, ip string) (admin.Output, error)
	LibP2PAddr(ctx context.Context, ip string) (admin.Output, error)
}

const usage = `commands:
  nodes                          list nodes and identities
  whoami <node>
  ping <node> <peer>             <peer> is a node name or peer ID
  peer-routing <node> <peer>
  private-ping <node> <peer>
  create-stream <node> <peer>
  dht <node>                     dump DHT peers
  dht-refresh <node>
  add-peer <node> <multiaddr>
  publish <node> <topic> <hex>
  publish-bytes <node> <hex>
  topics <node>
  libp2p <node>
  help
  exit`

var errUsage = errors.New("wrong number of arguments")

// CLI reads commands from in and writes results to out. It does not own
// the registry or the client.
type CLI struct {
	client Client
	reg    *identity.Registry
	in     io.Reader
	out    io.Writer
	quit   func()
}

// NewCLI constructs a CLI. quit is invoked on "exit".
func NewCLI(client Client, reg *identity.Registry, in io.Reader, out io.Writer, quit func()) *CLI {
	if quit == nil {
		quit = func() {}
	}
	return &CLI{client: client, reg: reg, in: in, out: out, quit: quit}
}

// RunLine executes a single command line. On failure it prints a line
// starting with "ERR" and returns the error. "exit" returns io.EOF.
func (cli *CLI) RunLine(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	err := cli.dispatch(ctx, strings.ToLower(fields[0]), fields[1:])
	if err != nil && err != io.EOF {
		fmt.Fprintf(cli.out, "ERR %v\n", err)
	}
	return err
}

// Run reads lines until EOF, "exit" or context cancellation. Command errors
// are printed and do not stop the loop.
func (cli *CLI) Run(ctx context.Context) error {
	sc := bufio.NewScanner(cli.in)
	fmt.Fprint(cli.out, "> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := cli.RunLine(ctx, sc.Text()); err == io.EOF {
			return nil
		}
		fmt.Fprint(cli.out, "> ")
	}
	return sc.Err()
}

func (cli *CLI) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(cli.out, usage)
		return nil
	case "exit", "quit":
		cli.quit()
		return io.EOF
	case "nodes":
		return cli.nodes()
	case "whoami":
		return cli.withNode(args, 0, func(ip string, _ []string) error {
			id, err := cli.client.WhoAmI(ctx, ip)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "peer_id=%s flow_id=%s\n", id.PeerID, id.FlowID)
			return nil
		})
	case "ping", "private-ping":
		return cli.withNode(args, 1, func(ip string, rest []string) error {
			peer, err := cli.reg.ResolvePeer(rest[0])
			if err != nil {
				return err
			}
			call := cli.client.Ping
			if cmd == "private-ping" {
				call = cli.client.PrivatePing
			}
			res, err := call(ctx, ip, peer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, res)
			return nil
		})
	case "peer-routing", "create-stream":
		return cli.withNode(args, 1, func(ip string, rest []string) error {
			peer, err := cli.reg.ResolvePeer(rest[0])
			if err != nil {
				return err
			}
			call := cli.client.PeerRouting
			if cmd == "create-stream" {
				call = cli.client.CreateStream
			}
			return cli.print(call(ctx, ip, peer))
		})
	case "dht":
		return cli.withNode(args, 0, func(ip string, _ []string) error {
			peers, err := cli.client.DHTPeers(ctx, ip)
			if err != nil {
				return err
			}
			for _, p := range peers {
				name, _ := cli.reg.NameForPeer(p)
				fmt.Fprintf(cli.out, "%s %s\n", p, name)
			}
			return nil
		})
	case "dht-refresh":
		return cli.withNode(args, 0, func(ip string, _ []string) error {
			return cli.print(cli.client.DHTForceRefresh(ctx, ip))
		})
	case "add-peer":
		return cli.withNode(args, 1, func(ip string, rest []string) error {
			if _, err := identity.ParsePeerInfo(rest[0]); err != nil {
				return err
			}
			return cli.print(cli.client.AddPeer(ctx, ip, rest[0]))
		})
	case "publish":
		return cli.withNode(args, 2, func(ip string, rest []string) error {
			return cli.print(cli.client.Publish(ctx, ip, rest[0], rest[1]))
		})
	case "publish-bytes":
		return cli.withNode(args, 1, func(ip string, rest []string) error {
			return cli.print(cli.client.PublishBytes(ctx, ip, rest[0]))
		})
	case "topics":
		return cli.withNode(args, 0, func(ip string, _ []string) error {
			return cli.print(cli.client.AllTopics(ctx, ip))
		})
	case "libp2p":
		return cli.withNode(args, 0, func(ip string, _ []string) error {
			return cli.print(cli.client.LibP2PAddr(ctx, ip))
		})
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// withNode checks arity, resolves args[0] to an IP and runs fn with the rest.
func (cli *CLI) withNode(args []string, extra int, fn func(ip string, rest []string) error) error {
	if len(args) != extra+1 {
		return errUsage
	}
	ip, err := cli.reg.IP(args[0])
	if err != nil {
		return err
	}
	return fn(ip, args[1:])
}

func (cli *CLI) print(out admin.Output, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, out)
	return nil
}

func (cli *CLI) nodes() error {
	for _, e := range cli.reg.Entries() {
		if e.Identity == nil {
			fmt.Fprintf(cli.out, "%-20s %-15s\n", e.Name, e.IP)
			continue
		}
		fmt.Fprintf(cli.out, "%-20s %-15s %s %s\n", e.Name, e.IP, e.Identity.PeerID, e.Identity.FlowID)
	}
	return nil
}
