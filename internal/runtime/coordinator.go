// Package runtime tracks live tool instances for one assessment session:
// registration, visibility, stacking order and change notification. It is
// the only component allowed to mutate instance visibility.
package runtime

import (
	"sync"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"go.uber.org/zap"
)

// InstanceID derives the runtime instance key for a tool mounted in a
// structural scope, so the same tool type can have independent instances per
// item ("calculator" + "item7" → "calculator:item7"). Section-scoped floating
// tools pass the section id as scope.
func InstanceID(toolID, scopeID string) string {
	if scopeID == "" {
		return toolID
	}
	return toolID + ":" + scopeID
}

// Meta is the caller-supplied metadata for a registered instance.
type Meta struct {
	ToolID string
	Band   catalog.Band

	// ScopeID names the structural scope the instance belongs to (item id
	// for per-item tools, section id for floating tools).
	ScopeID string

	// Affordance is the opaque handle to the mounted UI surface.
	Affordance catalog.Affordance
}

// InstanceState is a read-only snapshot of one live instance.
type InstanceState struct {
	InstanceID string
	Meta       Meta
	Visible    bool
	ZIndex     int
}

// Event describes one completed logical operation for subscribers.
type Event struct {
	// Op is the operation that mutated state: "register", "unregister",
	// "show", "hide", "toggle", "bring_to_front", "hide_all", "sync".
	Op string

	// Changed lists the instance ids whose state changed.
	Changed []string
}

// Listener receives change events. Listeners are invoked synchronously after
// the mutation completes, at most once per logical operation. A listener must
// not call back into mutating operations from its own invocation.
type Listener func(Event)

type instance struct {
	meta    Meta
	visible bool
	zIndex  int
}

// Coordinator owns all runtime tool state for one session. One coordinator
// exists per active section runtime; the surrounding session creates and
// disposes it. Safe for concurrent use.
type Coordinator struct {
	mu        sync.Mutex
	instances map[string]*instance
	listeners map[int]Listener
	nextSub   int
	logger    *zap.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		instances: make(map[string]*instance),
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// RegisterTool adds an instance in the hidden state. Idempotent:
// re-registering updates metadata without resetting visibility or z-index.
func (c *Coordinator) RegisterTool(instanceID string, meta Meta) {
	c.mu.Lock()
	inst, exists := c.instances[instanceID]
	if exists {
		inst.meta = meta
	} else {
		c.instances[instanceID] = &instance{meta: meta}
	}
	c.mu.Unlock()

	if !exists {
		c.notify(Event{Op: "register", Changed: []string{instanceID}})
	}
}

// UnregisterTool removes an instance and all its runtime state.
func (c *Coordinator) UnregisterTool(instanceID string) {
	c.mu.Lock()
	_, exists := c.instances[instanceID]
	delete(c.instances, instanceID)
	c.mu.Unlock()

	if exists {
		c.notify(Event{Op: "unregister", Changed: []string{instanceID}})
	}
}

// ShowTool makes an instance visible and brings it to the front of its band.
// No-op if the instance is unknown or already visible.
func (c *Coordinator) ShowTool(instanceID string) {
	if c.setVisible(instanceID, true, "show") {
		return
	}
	c.logger.Debug("runtime: show ignored", zap.String("instance_id", instanceID))
}

// HideTool hides an instance. No-op if unknown or already hidden.
func (c *Coordinator) HideTool(instanceID string) {
	if c.setVisible(instanceID, false, "hide") {
		return
	}
	c.logger.Debug("runtime: hide ignored", zap.String("instance_id", instanceID))
}

// ToggleTool flips an instance's visibility.
func (c *Coordinator) ToggleTool(instanceID string) {
	c.mu.Lock()
	inst, ok := c.instances[instanceID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("runtime: toggle of unknown instance ignored", zap.String("instance_id", instanceID))
		return
	}
	target := !inst.visible
	c.applyVisible(inst, target)
	c.mu.Unlock()

	c.notify(Event{Op: "toggle", Changed: []string{instanceID}})
}

// BringToFront assigns the instance a z-index strictly greater than every
// other visible instance in its band. No-op for hidden or unknown instances.
func (c *Coordinator) BringToFront(instanceID string) {
	c.mu.Lock()
	inst, ok := c.instances[instanceID]
	if !ok || !inst.visible {
		c.mu.Unlock()
		return
	}
	changed := c.raise(inst, instanceID)
	c.mu.Unlock()

	c.notify(Event{Op: "bring_to_front", Changed: changed})
}

// HideAllTools hides every visible instance in a single batched transition
// with one notification.
func (c *Coordinator) HideAllTools() {
	c.mu.Lock()
	var changed []string
	for id, inst := range c.instances {
		if inst.visible {
			inst.visible = false
			changed = append(changed, id)
		}
	}
	c.mu.Unlock()

	if len(changed) > 0 {
		c.notify(Event{Op: "hide_all", Changed: changed})
	}
}

// SyncVisible enforces the visibility invariant against the current allowed
// set: any visible instance whose tool id is absent from allowed is hidden.
// Used after every re-resolution or navigation so an instance never outlives
// its pass-1/pass-2 membership.
func (c *Coordinator) SyncVisible(allowed map[string]struct{}) {
	c.mu.Lock()
	var changed []string
	for id, inst := range c.instances {
		if !inst.visible {
			continue
		}
		if _, ok := allowed[inst.meta.ToolID]; !ok {
			inst.visible = false
			changed = append(changed, id)
		}
	}
	c.mu.Unlock()

	if len(changed) > 0 {
		c.notify(Event{Op: "sync", Changed: changed})
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (c *Coordinator) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// IsToolVisible reports whether an instance is currently visible. Never
// mutates, never blocks on anything but the state lock.
func (c *Coordinator) IsToolVisible(instanceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[instanceID]
	return ok && inst.visible
}

// GetToolState returns a snapshot of one instance.
func (c *Coordinator) GetToolState(instanceID string) (InstanceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[instanceID]
	if !ok {
		return InstanceState{}, false
	}
	return InstanceState{
		InstanceID: instanceID,
		Meta:       inst.meta,
		Visible:    inst.visible,
		ZIndex:     inst.zIndex,
	}, true
}

// VisibleInstances returns snapshots of every visible instance.
func (c *Coordinator) VisibleInstances() []InstanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []InstanceState
	for id, inst := range c.instances {
		if !inst.visible {
			continue
		}
		out = append(out, InstanceState{
			InstanceID: id,
			Meta:       inst.meta,
			Visible:    true,
			ZIndex:     inst.zIndex,
		})
	}
	return out
}

// InstancesInScope returns the instance ids registered for a structural
// scope (used when navigating away from an item).
func (c *Coordinator) InstancesInScope(scopeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for id, inst := range c.instances {
		if inst.meta.ScopeID == scopeID {
			out = append(out, id)
		}
	}
	return out
}

// setVisible transitions an instance to the target visibility. Returns true
// when a notification was emitted (state actually changed).
func (c *Coordinator) setVisible(instanceID string, target bool, op string) bool {
	c.mu.Lock()
	inst, ok := c.instances[instanceID]
	if !ok || inst.visible == target {
		c.mu.Unlock()
		return false
	}
	c.applyVisible(inst, target)
	c.mu.Unlock()

	c.notify(Event{Op: op, Changed: []string{instanceID}})
	return true
}

// applyVisible performs the state transition under the lock. Showing implies
// bring-to-front.
func (c *Coordinator) applyVisible(inst *instance, target bool) []string {
	inst.visible = target
	if target {
		return c.raise(inst, "")
	}
	return nil
}

// raise assigns the next z-index in the instance's band. Must hold c.mu.
// Returns the ids whose z-index changed (more than one after a renumber).
func (c *Coordinator) raise(inst *instance, instanceID string) []string {
	var peers []*instance
	var peerIDs []string
	for id, other := range c.instances {
		if other != inst && other.visible && other.meta.Band == inst.meta.Band {
			peers = append(peers, other)
			peerIDs = append(peerIDs, id)
		}
	}

	z, renumbered := nextZ(inst.meta.Band, peers)
	inst.zIndex = z

	if renumbered {
		return append(peerIDs, instanceID)
	}
	return []string{instanceID}
}

// notify fans out an event to subscribers, synchronously, after the mutation
// has fully completed. The state lock is not held here, so listeners can
// query freely; mutating from a listener is a contract violation.
func (c *Coordinator) notify(ev Event) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
