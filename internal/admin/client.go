// Package admin is a client for the node admin endpoint. Every operation is a
// single synchronous POST; there are no retries.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/metrics"
)

const (
	// DefaultPort is the admin endpoint port of every node.
	DefaultPort = 9002
	// DefaultPath is the admin command route.
	DefaultPath = "/admin/run_command"
)

// ErrNoOutput is returned when a response carries no "output" field.
var ErrNoOutput = errors.New("admin response has no output field")

// ErrMissingField is returned when the output lacks a field the command
// always reports.
var ErrMissingField = errors.New("admin output is missing a field")

func missingField(cmd, field string) error {
	return fmt.Errorf("%s: %w %q", cmd, ErrMissingField, field)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin endpoint returned status %d: %s", e.Code, e.Body)
}

// NodeMessageError is returned when the node answers a command with a bare
// message where structured output was expected.
type NodeMessageError struct {
	Cmd     string
	Message string
}

func (e *NodeMessageError) Error() string {
	return fmt.Sprintf("%s: node replied %q", e.Cmd, e.Message)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Port int
	Path string
	// Timeout bounds each request; zero means none.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client sends commands to node admin endpoints.
type Client struct {
	http *http.Client
	port int
	path string
}

// NewClient returns a Client for the given options
func NewClient(opts Options) *Client {
	c := &Client{http: opts.HTTPClient, port: opts.Port, path: opts.Path}
	if c.http == nil {
		c.http = &http.Client{Timeout: opts.Timeout}
	}
	if c.port == 0 {
		c.port = DefaultPort
	}
	if c.path == "" {
		c.path = DefaultPath
	}
	return c
}

// Endpoint returns the admin URL of the node at ip.
func (c *Client) Endpoint(ip string) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(c.port)) + c.path
}

// Run sends cmd to the node at ip and returns the response's output field.
func (c *Client) Run(ctx context.Context, ip string, cmd Command) (Output, error) {
	start := time.Now()
	out, err := c.run(ctx, ip, cmd)
	metrics.ObserveAdminCall(cmd.Cmd, time.Since(start), err)
	if err != nil {
		logging.Get().Debug().Err(err).Str("ip", ip).Str("cmd", cmd.Cmd).Msg("admin command failed")
		return nil, fmt.Errorf("%s on %s: %w", cmd.Cmd, ip, err)
	}
	logging.Get().Debug().Str("ip", ip).Str("cmd", cmd.Cmd).Dur("took", time.Since(start)).Msg("admin command done")
	return out, nil
}

func (c *Client) run(ctx context.Context, ip string, cmd Command) (Output, error) {
	payload, err := cmd.Payload()
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(ip), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out, ok := fields["output"]
	if !ok {
		return nil, ErrNoOutput
	}
	return Output(out), nil
}

// logPayload emits the outgoing body before a publish.
func (c *Client) logPayload(ip string, cmd Command) {
	payload, err := cmd.Payload()
	if err != nil {
		return
	}
	logging.Get().Info().Str("ip", ip).Str("cmd", cmd.Cmd).RawJSON("payload", payload).Msg("sending payload")
}

// Reachable dials the admin port of the node at ip.
func (c *Client) Reachable(ctx context.Context, ip string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(c.port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WhoAmI asks the node for its peer and node identifiers.
func (c *Client) WhoAmI(ctx context.Context, ip string) (Identity, error) {
	out, err := c.Run(ctx, ip, NewCommand(CmdWhoAmI))
	if err != nil {
		return Identity{}, err
	}
	if out.IsString() {
		return Identity{}, &NodeMessageError{Cmd: CmdWhoAmI, Message: out.String()}
	}
	if out.IsNull() {
		return Identity{}, missingField(CmdWhoAmI, "peer_id")
	}
	var id Identity
	if err := out.Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode whoami output: %w", err)
	}
	if id.PeerID == "" {
		return Identity{}, missingField(CmdWhoAmI, "peer_id")
	}
	if id.FlowID == "" {
		return Identity{}, missingField(CmdWhoAmI, "flow_id")
	}
	return id, nil
}

// Ping has the node ping peerID through its ping service.
func (c *Client) Ping(ctx context.Context, ip, peerID string) (PingResult, error) {
	out, err := c.Run(ctx, ip, peerCommand(CmdPing, peerID))
	if err != nil {
		return PingResult{}, err
	}
	return decodePing(CmdPing, out)
}

// PeerRouting asks the node to look peerID up through its peer routing.
func (c *Client) PeerRouting(ctx context.Context, ip, peerID string) (Output, error) {
	return c.Run(ctx, ip, peerCommand(CmdPeerRouting, peerID))
}

// PrivatePing invokes the node's unexported ping function directly.
func (c *Client) PrivatePing(ctx context.Context, ip, peerID string) (PingResult, error) {
	out, err := c.Run(ctx, ip, peerCommand(CmdPrivatePing, peerID))
	if err != nil {
		return PingResult{}, err
	}
	return decodePing(CmdPrivatePing, out)
}

// CreateStream has the node open a libp2p stream to peerID.
func (c *Client) CreateStream(ctx context.Context, ip, peerID string) (Output, error) {
	return c.Run(ctx, ip, peerCommand(CmdCreateStream, peerID))
}

// DHTPeers returns the peer IDs in the node's DHT routing table.
func (c *Client) DHTPeers(ctx context.Context, ip string) ([]string, error) {
	out, err := c.Run(ctx, ip, NewCommand(CmdDumpDHT))
	if err != nil {
		return nil, err
	}
	if out.IsString() {
		return nil, &NodeMessageError{Cmd: CmdDumpDHT, Message: out.String()}
	}
	var peers []string
	if err := out.Decode(&peers); err != nil {
		return nil, fmt.Errorf("decode dump-dht output: %w", err)
	}
	return peers, nil
}

// DHTForceRefresh triggers a routing table refresh on the node.
func (c *Client) DHTForceRefresh(ctx context.Context, ip string) (Output, error) {
	return c.Run(ctx, ip, NewCommand(CmdDHTForceRefresh))
}

// AddPeer hands peerInfo to the node's libp2p host.
func (c *Client) AddPeer(ctx context.Context, ip, peerInfo string) (Output, error) {
	return c.Run(ctx, ip, NewCommand(CmdAddPeer, Param{"peerInfo", peerInfo}))
}

// Publish publishes hex-encoded data on a gossip topic.
func (c *Client) Publish(ctx context.Context, ip, topic, hexData string) (Output, error) {
	cmd := NewCommand(CmdPublishTopic, Param{"topic", topic}, Param{"data", hexData})
	c.logPayload(ip, cmd)
	return c.Run(ctx, ip, cmd)
}

// PublishBytes publishes hex-encoded data through the node's raw publish hook.
func (c *Client) PublishBytes(ctx context.Context, ip, hexData string) (Output, error) {
	cmd := NewCommand(CmdPublishBytes, Param{"data", hexData})
	c.logPayload(ip, cmd)
	return c.Run(ctx, ip, cmd)
}

// AllTopics lists the topics the node is subscribed to.
func (c *Client) AllTopics(ctx context.Context, ip string) (Output, error) {
	return c.Run(ctx, ip, NewCommand(CmdAllTopics))
}

// LibP2PAddr returns the listen address from the node's libp2p builder.
func (c *Client) LibP2PAddr(ctx context.Context, ip string) (Output, error) {
	return c.Run(ctx, ip, NewCommand(CmdLibP2P))
}
