package identity

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ResolvePeer turns a node name or a literal peer ID into a peer ID string.
// Node names take precedence; anything else must decode as a libp2p peer ID.
func (r *Registry) ResolvePeer(arg string) (string, error) {
	if _, ok := r.topo.IP(arg); ok {
		return r.PeerID(arg)
	}
	id, err := peer.Decode(arg)
	if err != nil {
		return "", fmt.Errorf("%q is neither a known node nor a valid peer ID: %w", arg, err)
	}
	return id.String(), nil
}

// ParsePeerInfo checks that s is a multiaddr ending in /p2p/<peer-id>.
func ParsePeerInfo(s string) (*peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid multiaddr %q: %w", s, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return nil, fmt.Errorf("multiaddr %q has no peer component: %w", s, err)
	}
	return info, nil
}
