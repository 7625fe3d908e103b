package identity

import (
	"fmt"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/topology"
)

// Entry pairs a node with its identity, when one was resolved.
type Entry struct {
	topology.Node
	Identity *admin.Identity `json:"identity,omitempty"`
}

// Registry is the result of a resolution pass. It is written once by the
// Resolver and read-only afterwards.
type Registry struct {
	topo   *topology.Topology
	ids    map[string]admin.Identity
	byPeer map[string]string
}

func newRegistry(topo *topology.Topology) *Registry {
	return &Registry{topo: topo, ids: make(map[string]admin.Identity), byPeer: make(map[string]string)}
}

// NewRegistry builds a registry from already known identities.
func NewRegistry(topo *topology.Topology, ids map[string]admin.Identity) *Registry {
	reg := newRegistry(topo)
	for _, n := range topo.Nodes() {
		if id, ok := ids[n.Name]; ok {
			reg.set(n.Name, id)
		}
	}
	return reg
}

func (r *Registry) set(name string, id admin.Identity) {
	r.ids[name] = id
	if _, taken := r.byPeer[id.PeerID]; !taken {
		r.byPeer[id.PeerID] = name
	}
}

// Topology returns the underlying topology.
func (r *Registry) Topology() *topology.Topology { return r.topo }

// IP returns the address of the named node.
func (r *Registry) IP(name string) (string, error) {
	ip, ok := r.topo.IP(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	return ip, nil
}

// Identity returns the resolved identity of the named node.
func (r *Registry) Identity(name string) (admin.Identity, bool) {
	id, ok := r.ids[name]
	return id, ok
}

// PeerID returns the peer ID of the named node.
func (r *Registry) PeerID(name string) (string, error) {
	if _, ok := r.topo.IP(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	id, ok := r.ids[name]
	if !ok {
		return "", fmt.Errorf("node %s has no resolved identity", name)
	}
	return id.PeerID, nil
}

// NameForPeer maps a peer ID back to the first node that reported it.
func (r *Registry) NameForPeer(peerID string) (string, bool) {
	name, ok := r.byPeer[peerID]
	return name, ok
}

// Entries returns every node in topology order with its identity, if any.
func (r *Registry) Entries() []Entry {
	nodes := r.topo.Nodes()
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		e := Entry{Node: n}
		if id, ok := r.ids[n.Name]; ok {
			id := id
			e.Identity = &id
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of resolved identities.
func (r *Registry) Len() int { return len(r.ids) }

// Names returns every node name in topology order.
func (r *Registry) Names() []string {
	nodes := r.topo.Nodes()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
