// Package capability tracks which scribe nodes are reachable on the bus and
// which services each one offers.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	Recognize = "stt.recognize"
	Compose   = "compose"
	Recorder  = "recorder"
	SMS       = "sms"
)

type Node struct {
	ID           string                `json:"id"`
	Runtime      string                `json:"runtime"`
	Capabilities []protocol.Capability `json:"capabilities"`
	LastSeen     time.Time             `json:"lastSeen"`
	Healthy      bool                  `json:"healthy"`
	Local        bool                  `json:"local"`
}

// Registry announces the local node and keeps the table of peers. Nodes
// silent for longer than the heartbeat timeout turn unhealthy and are
// forgotten after forgetAfter timeouts.
type Registry struct {
	cfg     config.NodeConfig
	runtime string
	local   []protocol.Capability
	log     *slog.Logger
	bus     *bus.Client
	now     func() time.Time

	mu    sync.RWMutex
	nodes map[string]*Node

	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription
}

const forgetAfter = 10

func NewRegistry(cfg config.NodeConfig, runtime string, local []protocol.Capability, busClient *bus.Client, log *slog.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		runtime: runtime,
		local:   local,
		log:     log.With(slog.String("component", "capability-registry")),
		bus:     busClient,
		now:     time.Now,
		nodes:   make(map[string]*Node),
	}
}

// Start subscribes to peer traffic, announces the local node and begins
// heartbeating.
func (r *Registry) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	conn := r.bus.Conn()
	for _, subject := range []string{protocol.SubjectNodeAnnounce, protocol.SubjectNodeHeartbeat + ".*"} {
		sub, err := conn.Subscribe(subject, r.handleAnnouncement)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
	}

	if err := r.publish(protocol.SubjectNodeAnnounce); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.wg.Wait()
}

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()
	heartbeat := time.NewTicker(r.interval())
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := r.publish(protocol.SubjectNodeHeartbeat + "." + r.cfg.ID); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
			r.evaluateHealth()
		}
	}
}

func (r *Registry) interval() time.Duration {
	return time.Duration(r.cfg.HeartbeatIntervalMS) * time.Millisecond
}

func (r *Registry) timeout() time.Duration {
	return time.Duration(r.cfg.HeartbeatTimeoutMS) * time.Millisecond
}

func (r *Registry) publish(subject string) error {
	msg := protocol.NodeAnnouncement{
		NodeID:       r.cfg.ID,
		Runtime:      r.runtime,
		Capabilities: r.local,
		Timestamp:    r.now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish(subject, payload); err != nil {
		return err
	}
	r.observe(msg)
	return nil
}

func (r *Registry) handleAnnouncement(msg *nats.Msg) {
	var ann protocol.NodeAnnouncement
	if err := json.Unmarshal(msg.Data, &ann); err != nil {
		r.log.Warn("invalid node announcement", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
		return
	}
	if ann.NodeID == "" {
		return
	}
	r.observe(ann)
}

func (r *Registry) observe(ann protocol.NodeAnnouncement) {
	seen := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[ann.NodeID]
	if !ok {
		node = &Node{ID: ann.NodeID, Local: ann.NodeID == r.cfg.ID}
		r.nodes[ann.NodeID] = node
		if !node.Local {
			r.log.Info("peer discovered", slog.String("node_id", ann.NodeID), slog.Int("capabilities", len(ann.Capabilities)))
		}
	}
	node.Runtime = ann.Runtime
	node.Capabilities = ann.Capabilities
	node.LastSeen = seen
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	now := r.now()
	timeout := r.timeout()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, node := range r.nodes {
		silent := now.Sub(node.LastSeen)
		switch {
		case silent > timeout*forgetAfter && !node.Local:
			delete(r.nodes, id)
			r.log.Info("peer forgotten", slog.String("node_id", id))
		case silent > timeout && node.Healthy:
			node.Healthy = false
			r.log.Warn("peer missed heartbeats", slog.String("node_id", id), slog.Duration("silent", silent))
		}
	}
}

// Healthy reports whether the local node still hears its own heartbeats.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[r.cfg.ID]
	return ok && node.Healthy
}

// Nodes returns known nodes sorted by id, optionally filtered.
func (r *Registry) Nodes(filter func(Node) bool) []Node {
	r.mu.RLock()
	out := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		n := *node
		n.Capabilities = append([]protocol.Capability(nil), node.Capabilities...)
		if filter == nil || filter(n) {
			out = append(out, n)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Offering matches healthy nodes that advertise the named capability.
func Offering(name string) func(Node) bool {
	return func(n Node) bool {
		if !n.Healthy {
			return false
		}
		for _, c := range n.Capabilities {
			if c.Name == name {
				return true
			}
		}
		return false
	}
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-scribe/internal/capability")
	nodes, err := meter.Int64ObservableGauge("scribe.nodes.healthy", metric.WithDescription("Healthy scribe nodes on the bus"))
	if err != nil {
		return err
	}
	caps, err := meter.Int64ObservableGauge("scribe.nodes.capabilities", metric.WithDescription("Capabilities advertised by healthy nodes"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		var n, c int64
		for _, node := range r.Nodes(func(x Node) bool { return x.Healthy }) {
			n++
			c += int64(len(node.Capabilities))
		}
		obs.ObserveInt64(nodes, n)
		obs.ObserveInt64(caps, c)
		return nil
	}, nodes, caps)
	return err
}
