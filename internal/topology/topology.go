// Package topology turns a container-inspection document describing the
// testbed network into an ordered set of named nodes with IPv4 addresses.
package topology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
)

// ErrDuplicateName is returned when two containers map to the same short name.
var ErrDuplicateName = errors.New("duplicate node name")

// Node is a container attached to the testbed network.
type Node struct {
	Name        string `json:"name"`
	IP          string `json:"ip"`
	ContainerID string `json:"container_id"`
}

// Container is one raw entry of the inspected network, before name and
// address normalization.
type Container struct {
	ID          string `json:"-"`
	Name        string `json:"Name"`
	IPv4Address string `json:"IPv4Address"`
}

// Options controls how container names are shortened.
type Options struct {
	// NamePrefixLen strips a fixed number of leading characters when > 0.
	// Otherwise the compose project prefix is stripped up to the first '_' or '-'.
	NamePrefixLen int
}

// Topology is a read-only snapshot of the network. Node order follows the
// source document.
type Topology struct {
	nodes  []Node
	byName map[string]int
}

// Nodes returns the nodes in source order.
func (t *Topology) Nodes() []Node {
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Len returns the number of nodes.
func (t *Topology) Len() int { return len(t.nodes) }

// IP returns the address of the named node.
func (t *Topology) IP(name string) (string, bool) {
	i, ok := t.byName[name]
	if !ok {
		return "", false
	}
	return t.nodes[i].IP, true
}

// Node returns the named node.
func (t *Topology) Node(name string) (Node, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Node{}, false
	}
	return t.nodes[i], true
}

// Build normalizes raw container entries into a Topology, preserving their order.
func Build(containers []Container, opts Options) (*Topology, error) {
	t := &Topology{nodes: make([]Node, 0, len(containers)), byName: make(map[string]int, len(containers))}
	for _, c := range containers {
		name, err := ShortName(c.Name, opts.NamePrefixLen)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", c.ID, err)
		}
		ip, err := StripCIDR(c.IPv4Address)
		if err != nil {
			return nil, fmt.Errorf("container %s (%s): %w", c.ID, name, err)
		}
		if prev, ok := t.byName[name]; ok {
			return nil, fmt.Errorf("%w %q: containers %s and %s", ErrDuplicateName, name, t.nodes[prev].ContainerID, c.ID)
		}
		t.byName[name] = len(t.nodes)
		t.nodes = append(t.nodes, Node{Name: name, IP: ip, ContainerID: c.ID})
	}
	return t, nil
}

// ShortName strips the project prefix from a container name.
func ShortName(name string, prefixLen int) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if prefixLen > 0 {
		if len(name) <= prefixLen {
			return "", fmt.Errorf("container name %q is not longer than prefix length %d", name, prefixLen)
		}
		return name[prefixLen:], nil
	}
	i := strings.IndexAny(name, "_-")
	if i < 0 || i == len(name)-1 {
		return "", fmt.Errorf("container name %q has no project prefix", name)
	}
	return name[i+1:], nil
}

// StripCIDR returns the address part of an IPv4 CIDR such as "10.0.0.5/24".
func StripCIDR(addr string) (string, error) {
	p, err := netip.ParsePrefix(addr)
	if err != nil {
		return "", fmt.Errorf("invalid IPv4Address %q: %w", addr, err)
	}
	if !p.Addr().Is4() {
		return "", fmt.Errorf("invalid IPv4Address %q: not an IPv4 address", addr)
	}
	return p.Addr().String(), nil
}

type networkDoc struct {
	Name       string          `json:"Name"`
	Containers json.RawMessage `json:"Containers"`
}

// Parse reads a `docker network inspect` document. Only the first network in
// the array is used.
func Parse(r io.Reader, opts Options) (*Topology, error) {
	var docs []networkDoc
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode topology document: %w", err)
	}
	if len(docs) == 0 {
		return nil, errors.New("topology document contains no networks")
	}
	raw := bytes.TrimSpace(docs[0].Containers)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("network %q has no Containers field", docs[0].Name)
	}
	containers, err := decodeContainers(raw)
	if err != nil {
		return nil, err
	}
	return Build(containers, opts)
}

// LoadFile parses the topology document at path.
func LoadFile(path string, opts Options) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology %s: %w", path, err)
	}
	defer f.Close()
	t, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("load topology %s: %w", path, err)
	}
	return t, nil
}

// decodeContainers walks the Containers object token by token so entries
// keep their document order.
func decodeContainers(raw []byte) ([]Container, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode Containers: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode Containers: expected object, got %v", tok)
	}
	var out []Container
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode Containers: %w", err)
		}
		id, _ := tok.(string)
		var c Container
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode container %s: %w", id, err)
		}
		if c.Name == "" || c.IPv4Address == "" {
			return nil, fmt.Errorf("container %s: missing Name or IPv4Address", id)
		}
		c.ID = id
		out = append(out, c)
	}
	return out, nil
}
