package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/topology"
)

// fakeQuerier answers whoami from a map keyed by IP and records call order.
type fakeQuerier struct {
	ids   map[string]admin.Identity
	fail  map[string]error
	calls []string
}

func (f *fakeQuerier) WhoAmI(ctx context.Context, ip string) (admin.Identity, error) {
	f.calls = append(f.calls, ip)
	if err, ok := f.fail[ip]; ok {
		return admin.Identity{}, err
	}
	return f.ids[ip], nil
}

func mustTopology(t *testing.T, doc string) *topology.Topology {
	t.Helper()
	topo, err := topology.Parse(strings.NewReader(doc), topology.Options{})
	if err != nil {
		t.Fatalf("parse topology: %v", err)
	}
	return topo
}

const mixedDoc = `[{"Containers": {
	"c1": {"Name": "localnet_access_1_1", "IPv4Address": "10.0.0.2/24"},
	"c2": {"Name": "localnet_prometheus_1", "IPv4Address": "10.0.0.3/24"},
	"c3": {"Name": "localnet_collection_1_1", "IPv4Address": "10.0.0.4/24"},
	"c4": {"Name": "localnet_loki_1", "IPv4Address": "10.0.0.5/24"},
	"c5": {"Name": "localnet_verification_1_1", "IPv4Address": "10.0.0.6/24"}
}}]`

func TestMatchesRole(t *testing.T) {
	roles := []string{"access", "collection", "consensus", "execution", "verification"}
	cases := map[string]bool{
		"access_1_1":       true,
		"consensus_3_1":    true,
		"execution_1_1":    true,
		"verification_2_1": true,
		"collection_1_1":   true,
		"prometheus_1":     false,
		"grafana_1":        false,
		"":                 false,
	}
	for name, want := range cases {
		if got := MatchesRole(name, roles); got != want {
			t.Errorf("MatchesRole(%q) = %v, want %v", name, got, want)
		}
	}
	if MatchesRole("access_1_1", []string{""}) {
		t.Error("empty role must not match everything")
	}
}

func TestResolveSkipsNonRoleNodes(t *testing.T) {
	topo := mustTopology(t, mixedDoc)
	q := &fakeQuerier{ids: map[string]admin.Identity{
		"10.0.0.2": {PeerID: "QmAccess", FlowID: "a1"},
		"10.0.0.4": {PeerID: "QmCollection", FlowID: "c1"},
		"10.0.0.6": {PeerID: "QmVerification", FlowID: "v1"},
	}}
	reg, err := NewResolver(q, []string{"access", "collection", "consensus", "execution", "verification"}).Resolve(context.Background(), topo)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantCalls := []string{"10.0.0.2", "10.0.0.4", "10.0.0.6"}
	if fmt.Sprint(q.calls) != fmt.Sprint(wantCalls) {
		t.Fatalf("expected calls %v in topology order, got %v", wantCalls, q.calls)
	}
	for _, skipped := range []string{"prometheus_1", "loki_1"} {
		if _, ok := reg.Identity(skipped); ok {
			t.Fatalf("%s must not have an identity", skipped)
		}
		if _, err := reg.PeerID(skipped); err == nil {
			t.Fatalf("expected PeerID(%s) to fail", skipped)
		}
		// still addressable
		if _, err := reg.IP(skipped); err != nil {
			t.Fatalf("IP(%s): %v", skipped, err)
		}
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 identities, got %d", reg.Len())
	}
	if name, ok := reg.NameForPeer("QmCollection"); !ok || name != "collection_1_1" {
		t.Fatalf("NameForPeer: got %q %v", name, ok)
	}
	entries := reg.Entries()
	if len(entries) != 5 || entries[1].Identity != nil || entries[2].Identity == nil {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestResolveAbortsOnFailure(t *testing.T) {
	topo := mustTopology(t, mixedDoc)
	boom := errors.New("connection refused")
	q := &fakeQuerier{fail: map[string]error{"10.0.0.4": boom}}
	_, err := NewResolver(q, []string{"access", "collection", "verification"}).Resolve(context.Background(), topo)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "collection_1_1") {
		t.Fatalf("expected node name in error, got %v", err)
	}
	if len(q.calls) != 2 {
		t.Fatalf("expected resolution to stop after failing node, calls=%v", q.calls)
	}
}

func TestRegistryUnknownNode(t *testing.T) {
	reg := NewRegistry(mustTopology(t, mixedDoc), nil)
	if _, err := reg.IP("ghost_1"); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if _, err := reg.PeerID("ghost_1"); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

// TestResolveEndToEnd drives the real admin client against a fake node. All
// connections are routed to the test server regardless of the target IP.
func TestResolveEndToEnd(t *testing.T) {
	var (
		mu               sync.Mutex
		gotHost, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHost = r.Host
		gotBody = readAll(r)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"output": {"peer_id": "Qm123", "flow_id": "42"}}`))
	}))
	defer srv.Close()

	dialer := &net.Dialer{}
	hc := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}}
	client := admin.NewClient(admin.Options{HTTPClient: hc})

	topo := mustTopology(t, `[{"Containers": {"x": {"Name": "flow-access_1_1", "IPv4Address": "172.18.0.2/16"}}}]`)
	reg, err := NewResolver(client, []string{"access", "collection", "consensus", "execution", "verification"}).Resolve(context.Background(), topo)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ip, _ := reg.IP("access_1_1"); ip != "172.18.0.2" {
		t.Fatalf("expected ip 172.18.0.2, got %q", ip)
	}
	if peer, _ := reg.PeerID("access_1_1"); peer != "Qm123" {
		t.Fatalf("expected peer Qm123, got %q", peer)
	}
	if id, _ := reg.Identity("access_1_1"); id.FlowID != "42" {
		t.Fatalf("expected flow id 42, got %q", id.FlowID)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotHost != "172.18.0.2:9002" {
		t.Fatalf("expected request addressed to 172.18.0.2:9002, got %q", gotHost)
	}
	if gotBody != `{"commandName":"ncc-command","data":{"cmd":"whoami"}}` {
		t.Fatalf("unexpected body %s", gotBody)
	}
}

func TestResolveAbortsOnIncompleteIdentity(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"output": {"flow_id": "42"}}`))
	}))
	defer srv.Close()
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	client := admin.NewClient(admin.Options{Port: p})

	topo := mustTopology(t, `[{"Containers": {
		"a": {"Name": "localnet_access_1_1", "IPv4Address": "127.0.0.1/8"},
		"b": {"Name": "localnet_collection_1_1", "IPv4Address": "127.0.0.1/8"}
	}}]`)
	reg, err := NewResolver(client, []string{"access", "collection"}).Resolve(context.Background(), topo)
	if !errors.Is(err, admin.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got reg=%v err=%v", reg, err)
	}
	if !strings.Contains(err.Error(), "access_1_1") {
		t.Fatalf("expected node name in error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected resolution to stop at the first node, calls=%d", calls)
	}
}

func readAll(r *http.Request) string {
	b := new(strings.Builder)
	_, _ = io.Copy(b, r.Body)
	return b.String()
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry(mustTopology(t, mixedDoc), nil)
	want := []string{"access_1_1", "prometheus_1", "collection_1_1", "loki_1", "verification_1_1"}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
