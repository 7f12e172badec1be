package resolve

import (
	"encoding/json"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"go.uber.org/zap"
)

// Resolver turns a resolution context into one decision per tool id, with a
// full provenance trail. It performs no I/O and is deterministic: identical
// contexts yield identical decision maps and identical trail ordering.
type Resolver struct {
	catalog *catalog.Catalog
	rules   []rule
	logger  *zap.Logger
}

// New creates a resolver over the given catalog.
func New(cat *catalog.Catalog, logger *zap.Logger) *Resolver {
	return &Resolver{
		catalog: cat,
		rules:   ruleTable(),
		logger:  logger,
	}
}

// aliasResolution is the outcome of running the precedence table for one
// external support id.
type aliasResolution struct {
	supportID string
	entries   []TrailEntry
	winning   int // index into entries
	winStep   int // 1-based precedence step that decided
	outcome   ruleOutcome
}

// Resolve evaluates every support id mentioned anywhere in the context
// against the precedence table, maps support ids onto tool ids through the
// catalog, and merges alias outcomes into per-tool decisions.
//
// Unmapped support ids are logged and excluded — they neither enable nor
// block anything. Data-shape problems never surface as errors; the fail-safe
// direction is always deny.
func (r *Resolver) Resolve(rc *Context) *Result {
	perTool := make(map[string][]aliasResolution)
	var toolOrder []string

	for _, supportID := range rc.AllSupportIDs() {
		toolID, ok := r.catalog.ResolveToolID(supportID)
		if !ok {
			r.logger.Warn("resolve: no registered tool claims support id, excluding",
				zap.String("support_id", supportID),
			)
			continue
		}
		if _, seen := perTool[toolID]; !seen {
			toolOrder = append(toolOrder, toolID)
		}
		perTool[toolID] = append(perTool[toolID], r.evaluateAlias(supportID, rc))
	}

	result := &Result{
		Decisions: make(map[string]Decision, len(toolOrder)),
		Trails:    make(map[string]*Trail, len(toolOrder)),
	}
	for _, toolID := range toolOrder {
		decision, trail := r.merge(toolID, perTool[toolID], rc)
		result.Decisions[toolID] = decision
		result.Trails[toolID] = trail
	}
	return result
}

// evaluateAlias runs the full precedence table for one support id. Every rule
// appears in the trail: non-matching rules before the winner as skips,
// rules after the winner as short-circuited skips.
func (r *Resolver) evaluateAlias(supportID string, rc *Context) aliasResolution {
	ar := aliasResolution{supportID: supportID, winning: -1}

	for i, rl := range r.rules {
		step := i + 1
		if ar.winning >= 0 {
			ar.entries = append(ar.entries, TrailEntry{
				Step:      step,
				Rule:      rl.name,
				SupportID: supportID,
				Action:    ActionSkip,
				Reason:    "short-circuited by " + r.rules[ar.winStep-1].name,
				Source:    rl.source,
			})
			continue
		}

		out := rl.eval(supportID, rc)
		if !out.matched {
			ar.entries = append(ar.entries, TrailEntry{
				Step:      step,
				Rule:      rl.name,
				SupportID: supportID,
				Action:    ActionSkip,
				Reason:    "no match",
				Source:    rl.source,
			})
			continue
		}

		ar.entries = append(ar.entries, TrailEntry{
			Step:      step,
			Rule:      rl.name,
			SupportID: supportID,
			Action:    out.action,
			Reason:    out.reason,
			Source:    rl.source,
		})
		ar.winning = len(ar.entries) - 1
		ar.winStep = step
		ar.outcome = out
	}

	return ar
}

// merge folds one or more alias resolutions into the single decision for a
// tool id. An explicit veto on any alias blocks the tool; otherwise the
// enabling alias with the highest-precedence winning rule is kept; otherwise
// the tool stays blocked by default. An implicit default deny on one alias
// never cancels an explicit enablement of another.
func (r *Resolver) merge(toolID string, aliases []aliasResolution, rc *Context) (Decision, *Trail) {
	trail := &Trail{Winning: -1}

	var veto *aliasResolution
	var enable *aliasResolution
	offsets := make([]int, len(aliases))

	for i := range aliases {
		offsets[i] = len(trail.Entries)
		trail.Entries = append(trail.Entries, aliases[i].entries...)

		a := &aliases[i]
		switch a.outcome.action {
		case ActionBlock:
			// default_deny is the last table row; anything earlier is
			// an explicit veto.
			if a.winStep < len(r.rules) && veto == nil {
				veto = a
			}
		case ActionEnable:
			if enable == nil || a.winStep < enable.winStep {
				enable = a
			}
		}
	}

	markWinner := func(a *aliasResolution) {
		for i := range aliases {
			if &aliases[i] == a {
				trail.Winning = offsets[i] + a.winning
				return
			}
		}
	}

	decision := Decision{ToolID: toolID}
	switch {
	case veto != nil:
		decision.Restricted = true
		markWinner(veto)
	case enable != nil:
		decision.Enabled = true
		decision.Required = enable.outcome.required
		decision.AlwaysAvailable = enable.outcome.alwaysAvailable
		decision.Config = r.resolveConfig(toolID, enable, rc)
		markWinner(enable)
	default:
		// Every alias fell through to the default deny.
		if len(aliases) > 0 {
			markWinner(&aliases[0])
		}
	}

	return decision, trail
}

// resolveConfig picks the config payload for an enabled decision:
// administration override config as the base, replaced by item-supplied
// config when the item requirement is what enabled the tool. Payloads that
// fail the descriptor's schema are dropped, never fatal.
func (r *Resolver) resolveConfig(toolID string, enable *aliasResolution, rc *Context) json.RawMessage {
	var cfg json.RawMessage

	if ov, ok := rc.overrideFor(enable.supportID); ok && !ov.Blocked && len(ov.Config) > 0 {
		cfg = ov.Config
	}
	if r.rules[enable.winStep-1].name == "item_requirement" && rc.ItemRequirements != nil {
		if itemCfg, ok := rc.ItemRequirements.PerSupportConfig[enable.supportID]; ok && len(itemCfg) > 0 {
			cfg = itemCfg
		}
	}
	if cfg == nil {
		return nil
	}

	sch := r.catalog.ConfigSchema(toolID)
	if sch == nil {
		return cfg
	}
	var doc any
	if err := json.Unmarshal(cfg, &doc); err != nil {
		r.logger.Warn("resolve: config payload is not valid JSON, dropping",
			zap.String("tool_id", toolID),
			zap.String("support_id", enable.supportID),
			zap.Error(err),
		)
		return nil
	}
	if err := sch.Validate(doc); err != nil {
		r.logger.Warn("resolve: config payload failed schema validation, dropping",
			zap.String("tool_id", toolID),
			zap.String("support_id", enable.supportID),
			zap.Error(err),
		)
		return nil
	}
	return cfg
}
