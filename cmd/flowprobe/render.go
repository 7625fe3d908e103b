package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/identity"
)

type nodeRow struct {
	Name        string `json:"name"`
	IP          string `json:"ip"`
	ContainerID string `json:"container_id,omitempty"`
	PeerID      string `json:"peer_id,omitempty"`
	FlowID      string `json:"flow_id,omitempty"`
	Reachable   *bool  `json:"reachable,omitempty"`
}

type dhtRow struct {
	PeerID string `json:"peer_id"`
	Node   string `json:"node,omitempty"`
}

func nodeRows(reg *identity.Registry) []nodeRow {
	entries := reg.Entries()
	rows := make([]nodeRow, 0, len(entries))
	for _, e := range entries {
		r := nodeRow{Name: e.Name, IP: e.IP, ContainerID: e.ContainerID}
		if e.Identity != nil {
			r.PeerID, r.FlowID = e.Identity.PeerID, e.Identity.FlowID
		}
		rows = append(rows, r)
	}
	return rows
}

func dhtRows(reg *identity.Registry, peers []string) []dhtRow {
	rows := make([]dhtRow, 0, len(peers))
	for _, p := range peers {
		name, _ := reg.NameForPeer(p)
		rows = append(rows, dhtRow{PeerID: p, Node: name})
	}
	return rows
}

// render writes v in the selected output format.
func (a *app) render(w io.Writer, v any) error {
	if a.flags.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	switch v := v.(type) {
	case admin.Identity:
		_, err := fmt.Fprintf(w, "peer_id=%s flow_id=%s\n", v.PeerID, v.FlowID)
		return err
	case []nodeRow:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tIP\tPEER ID\tFLOW ID\tREACHABLE")
		for _, r := range v {
			reach := "-"
			if r.Reachable != nil {
				reach = fmt.Sprint(*r.Reachable)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.IP, dash(r.PeerID), dash(r.FlowID), reach)
		}
		return tw.Flush()
	case []dhtRow:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range v {
			fmt.Fprintf(tw, "%s\t%s\n", r.PeerID, dash(r.Node))
		}
		return tw.Flush()
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
