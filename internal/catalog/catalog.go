package catalog

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Catalog is the registry of tool descriptors for one assessment session.
// Registration happens at session start and the catalog is then frozen;
// lookups are read-only and safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	descriptors  map[string]*Descriptor
	supportIndex map[string]string // external support id → tool id
	schemas      map[string]*jsonschema.Schema
	frozen       bool
	logger       *zap.Logger
}

// New creates an empty catalog.
func New(logger *zap.Logger) *Catalog {
	return &Catalog{
		descriptors:  make(map[string]*Descriptor),
		supportIndex: make(map[string]string),
		schemas:      make(map[string]*jsonschema.Schema),
		logger:       logger,
	}
}

// Register adds a descriptor. Idempotent by ToolID with last-write-wins: a
// re-registration replaces the prior descriptor and releases the support ids
// it no longer claims. A support id already held by a different tool stays
// with the first registrant and the conflict is logged.
//
// Registering after Freeze is a programming error and panics.
func (c *Catalog) Register(d *Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		panic("catalog: Register called after Freeze")
	}
	if d == nil || d.ToolID == "" {
		c.logger.Error("catalog: descriptor with empty tool id rejected")
		return
	}

	// Release support ids owned by a prior registration of the same tool.
	if _, replacing := c.descriptors[d.ToolID]; replacing {
		for sid, tid := range c.supportIndex {
			if tid == d.ToolID {
				delete(c.supportIndex, sid)
			}
		}
	}

	c.descriptors[d.ToolID] = d

	for _, sid := range d.ExternalSupportIDs {
		if owner, taken := c.supportIndex[sid]; taken && owner != d.ToolID {
			c.logger.Error("catalog: external support id already claimed, keeping first registrant",
				zap.String("support_id", sid),
				zap.String("owner_tool_id", owner),
				zap.String("rejected_tool_id", d.ToolID),
			)
			continue
		}
		c.supportIndex[sid] = d.ToolID
	}

	delete(c.schemas, d.ToolID)
	if len(d.ConfigSchema) > 0 {
		sch, err := compileSchema(d.ConfigSchema)
		if err != nil {
			// Bad schema disables config validation for this tool only.
			c.logger.Error("catalog: config schema failed to compile, config payloads will be dropped",
				zap.String("tool_id", d.ToolID),
				zap.Error(err),
			)
		} else {
			c.schemas[d.ToolID] = sch
		}
	}
}

// Freeze marks the end of the registration phase. Lookups remain available;
// further Register calls panic.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Get returns the descriptor for a tool id, or nil if unregistered.
func (c *Catalog) Get(toolID string) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptors[toolID]
}

// ResolveToolID maps an external support id to its tool id.
func (c *Catalog) ResolveToolID(supportID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	toolID, ok := c.supportIndex[supportID]
	return toolID, ok
}

// ByLevel returns all descriptors that can attach at the given level.
func (c *Catalog) ByLevel(level Level) []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Descriptor
	for _, d := range c.descriptors {
		if d.SupportsLevel(level) {
			out = append(out, d)
		}
	}
	return out
}

// Descriptors returns all registered descriptors.
func (c *Catalog) Descriptors() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Descriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		out = append(out, d)
	}
	return out
}

// ConfigSchema returns the compiled config schema for a tool, or nil if the
// tool has none (or its schema failed to compile at registration).
func (c *Catalog) ConfigSchema(toolID string) *jsonschema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[toolID]
}

// EvaluateRelevance runs a descriptor's relevance predicate against the
// context. A missing descriptor, a nil predicate, or a panicking predicate
// all evaluate to "not relevant" — a broken predicate must only ever cost
// that one evaluation, never the batch.
func (c *Catalog) EvaluateRelevance(toolID string, sctx *StructuralContext) (relevant bool) {
	d := c.Get(toolID)
	if d == nil || d.Relevant == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("catalog: relevance predicate panicked, treating as not relevant",
				zap.String("tool_id", toolID),
				zap.Any("panic", r),
			)
			relevant = false
		}
	}()

	return d.Relevant(sctx)
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("config.json")
}
