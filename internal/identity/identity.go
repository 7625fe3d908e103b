// Package identity resolves the peer and node identifiers of role nodes in a
// topology by asking each one "whoami".
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/metrics"
	"github.com/flowprobe/flowprobe/internal/topology"
)

// ErrUnknownNode is returned for names missing from the topology.
var ErrUnknownNode = errors.New("unknown node")

// Querier is the admin call the resolver needs.
type Querier interface {
	WhoAmI(ctx context.Context, ip string) (admin.Identity, error)
}

// MatchesRole reports whether name contains any of the role substrings.
func MatchesRole(name string, roles []string) bool {
	for _, r := range roles {
		if r != "" && strings.Contains(name, r) {
			return true
		}
	}
	return false
}

// Resolver queries identities sequentially in topology order.
type Resolver struct {
	client Querier
	roles  []string
}

// NewResolver returns a Resolver for the given role substrings.
func NewResolver(client Querier, roles []string) *Resolver {
	return &Resolver{client: client, roles: roles}
}

// Resolve queries every role node in topo. The first failed query aborts
// resolution.
func (r *Resolver) Resolve(ctx context.Context, topo *topology.Topology) (*Registry, error) {
	reg := newRegistry(topo)
	for _, n := range topo.Nodes() {
		if !MatchesRole(n.Name, r.roles) {
			metrics.IncNodeSkipped()
			logging.Get().Debug().Str("node", n.Name).Msg("no role match; skipping identity query")
			continue
		}
		id, err := r.client.WhoAmI(ctx, n.IP)
		if err != nil {
			return nil, fmt.Errorf("resolve identity of %s: %w", n.Name, err)
		}
		reg.set(n.Name, id)
		metrics.IncIdentityResolved()
		logging.Get().Info().Str("node", n.Name).Str("ip", n.IP).Str("peer", id.PeerID).Str("flow_id", id.FlowID).Msg("resolved identity")
	}
	return reg, nil
}
