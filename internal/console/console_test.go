package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/identity"
	"github.com/flowprobe/flowprobe/internal/topology"
)

const bootstrapPeer = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

// fakeClient records the last call as "cmd ip args...".
type fakeClient struct {
	last string
	err  error
}

func (f *fakeClient) record(cmd, ip string, args ...string) {
	f.last = strings.Join(append([]string{cmd, ip}, args...), " ")
}

func (f *fakeClient) out(cmd, ip string, args ...string) (admin.Output, error) {
	f.record(cmd, ip, args...)
	return admin.Output(`"ok"`), f.err
}

func (f *fakeClient) WhoAmI(ctx context.Context, ip string) (admin.Identity, error) {
	f.record(admin.CmdWhoAmI, ip)
	return admin.Identity{PeerID: "QmAccess", FlowID: "a"}, f.err
}

func (f *fakeClient) Ping(ctx context.Context, ip, peerID string) (admin.PingResult, error) {
	f.record(admin.CmdPing, ip, peerID)
	return admin.PingResult{Result: "pong", Time: "1ms"}, f.err
}

func (f *fakeClient) PrivatePing(ctx context.Context, ip, peerID string) (admin.PingResult, error) {
	f.record(admin.CmdPrivatePing, ip, peerID)
	return admin.PingResult{Error: "no route"}, f.err
}

func (f *fakeClient) PeerRouting(ctx context.Context, ip, peerID string) (admin.Output, error) {
	return f.out(admin.CmdPeerRouting, ip, peerID)
}

func (f *fakeClient) CreateStream(ctx context.Context, ip, peerID string) (admin.Output, error) {
	return f.out(admin.CmdCreateStream, ip, peerID)
}

func (f *fakeClient) DHTPeers(ctx context.Context, ip string) ([]string, error) {
	f.record(admin.CmdDumpDHT, ip)
	return []string{"QmCollection", "QmStranger"}, f.err
}

func (f *fakeClient) DHTForceRefresh(ctx context.Context, ip string) (admin.Output, error) {
	return f.out(admin.CmdDHTForceRefresh, ip)
}

func (f *fakeClient) AddPeer(ctx context.Context, ip, peerInfo string) (admin.Output, error) {
	return f.out(admin.CmdAddPeer, ip, peerInfo)
}

func (f *fakeClient) Publish(ctx context.Context, ip, topic, hexData string) (admin.Output, error) {
	return f.out(admin.CmdPublishTopic, ip, topic, hexData)
}

func (f *fakeClient) PublishBytes(ctx context.Context, ip, hexData string) (admin.Output, error) {
	return f.out(admin.CmdPublishBytes, ip, hexData)
}

func (f *fakeClient) AllTopics(ctx context.Context, ip string) (admin.Output, error) {
	return f.out(admin.CmdAllTopics, ip)
}

func (f *fakeClient) LibP2PAddr(ctx context.Context, ip string) (admin.Output, error) {
	return f.out(admin.CmdLibP2P, ip)
}

func newTestCLI(t *testing.T, fc *fakeClient, in string) (*CLI, *bytes.Buffer) {
	t.Helper()
	topo, err := topology.Parse(strings.NewReader(`[{"Containers": {
		"a": {"Name": "localnet_access_1_1", "IPv4Address": "10.0.0.2/24"},
		"b": {"Name": "localnet_collection_1_1", "IPv4Address": "10.0.0.3/24"},
		"c": {"Name": "localnet_prometheus_1", "IPv4Address": "10.0.0.4/24"}
	}}]`), topology.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reg := identity.NewRegistry(topo, map[string]admin.Identity{
		"access_1_1":     {PeerID: "QmAccess", FlowID: "a"},
		"collection_1_1": {PeerID: "QmCollection", FlowID: "c"},
	})
	var out bytes.Buffer
	return NewCLI(fc, reg, strings.NewReader(in), &out, nil), &out
}

func TestRunLineDispatch(t *testing.T) {
	addr := "/ip4/10.0.0.3/tcp/3569/p2p/" + bootstrapPeer
	tests := []struct {
		line string
		call string
		out  string
	}{
		{"whoami access_1_1", "whoami 10.0.0.2", "peer_id=QmAccess flow_id=a"},
		{"ping access_1_1 collection_1_1", "ping-peerid 10.0.0.2 QmCollection", "pong (1ms)"},
		{"PING access_1_1 " + bootstrapPeer, "ping-peerid 10.0.0.2 " + bootstrapPeer, "pong"},
		{"private-ping access_1_1 collection_1_1", "private-ping 10.0.0.2 QmCollection", "unreachable: no route"},
		{"peer-routing collection_1_1 access_1_1", "peer-routing 10.0.0.3 QmAccess", "ok"},
		{"create-stream access_1_1 collection_1_1", "libp2p-createStream 10.0.0.2 QmCollection", "ok"},
		{"dht access_1_1", "dump-dht 10.0.0.2", "QmCollection collection_1_1"},
		{"dht-refresh access_1_1", "dht-forcerefresh 10.0.0.2", "ok"},
		{"add-peer access_1_1 " + addr, "libp2p-addPeer 10.0.0.2 " + addr, "ok"},
		{"publish access_1_1 topic-a 0a12", "publish-topic-data 10.0.0.2 topic-a 0a12", "ok"},
		{"publish-bytes access_1_1 0a12", "publish-bytes 10.0.0.2 0a12", "ok"},
		{"topics collection_1_1", "getAllTopics 10.0.0.3", "ok"},
		{"libp2p access_1_1", "libp2p 10.0.0.2", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			fc := &fakeClient{}
			cli, out := newTestCLI(t, fc, "")
			if err := cli.RunLine(context.Background(), tt.line); err != nil {
				t.Fatalf("RunLine: %v (output %q)", err, out.String())
			}
			if fc.last != tt.call {
				t.Fatalf("call = %q, want %q", fc.last, tt.call)
			}
			if !strings.Contains(out.String(), tt.out) {
				t.Fatalf("output %q does not contain %q", out.String(), tt.out)
			}
		})
	}
}

func TestRunLineRejects(t *testing.T) {
	tests := []string{
		"frobnicate",
		"whoami",
		"whoami nobody_1",
		"ping access_1_1",
		"ping access_1_1 not-a-peer",
		"ping access_1_1 prometheus_1",
		"add-peer access_1_1 /ip4/10.0.0.3/tcp/3569",
		"publish access_1_1 topic-only",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			fc := &fakeClient{}
			cli, out := newTestCLI(t, fc, "")
			if err := cli.RunLine(context.Background(), line); err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(out.String(), "ERR ") {
				t.Fatalf("output %q should start with ERR", out.String())
			}
			if fc.last != "" {
				t.Fatalf("no admin call expected, got %q", fc.last)
			}
		})
	}
}

func TestRunLineClientError(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	cli, out := newTestCLI(t, fc, "")
	if err := cli.RunLine(context.Background(), "topics access_1_1"); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out.String(), "ERR connection refused") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestNodes(t *testing.T) {
	cli, out := newTestCLI(t, &fakeClient{}, "")
	if err := cli.RunLine(context.Background(), "nodes"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "QmAccess") || strings.Contains(lines[2], "Qm") {
		t.Fatalf("unexpected node listing %q", out.String())
	}
}

func TestRunStopsOnExit(t *testing.T) {
	fc := &fakeClient{}
	quit := false
	topoCLI, out := newTestCLI(t, fc, "")
	cli := NewCLI(fc, topoCLI.reg, strings.NewReader("\nbogus\nwhoami access_1_1\nexit\nwhoami collection_1_1\n"), out, func() { quit = true })
	if err := cli.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !quit {
		t.Fatal("quit callback not invoked")
	}
	if fc.last != "whoami 10.0.0.2" {
		t.Fatalf("commands after exit must not run, last call %q", fc.last)
	}
	if !strings.Contains(out.String(), "ERR unknown command") {
		t.Fatalf("bad line should be reported, got %q", out.String())
	}
}

func TestRunEOF(t *testing.T) {
	cli, _ := newTestCLI(t, &fakeClient{}, "help\n")
	if err := cli.Run(context.Background()); err != nil && err != io.EOF {
		t.Fatalf("Run: %v", err)
	}
}
