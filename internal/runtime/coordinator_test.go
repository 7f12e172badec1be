package runtime

import (
	"testing"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCoordinator() *Coordinator {
	return NewCoordinator(zap.NewNop())
}

func TestRegisterTool_IdempotentKeepsVisibility(t *testing.T) {
	c := newCoordinator()
	id := InstanceID("calculator", "item7")

	c.RegisterTool(id, Meta{ToolID: "calculator", Band: catalog.BandModal, ScopeID: "item7"})
	c.ShowTool(id)
	if !c.IsToolVisible(id) {
		t.Fatal("instance should be visible after show")
	}

	// Re-registering updates metadata without resetting visibility.
	c.RegisterTool(id, Meta{ToolID: "calculator", Band: catalog.BandModal, ScopeID: "item7"})
	if !c.IsToolVisible(id) {
		t.Fatal("re-registration must not reset visibility")
	}

	st, ok := c.GetToolState(id)
	if !ok || st.Meta.ScopeID != "item7" {
		t.Fatalf("unexpected state after re-register: %+v", st)
	}
}

func TestToggleTool_RoundTripNotifiesExactlyTwice(t *testing.T) {
	c := newCoordinator()
	id := InstanceID("calculator", "item7")
	c.RegisterTool(id, Meta{ToolID: "calculator", Band: catalog.BandModal})

	fired := 0
	unsubscribe := c.Subscribe(func(ev Event) {
		if ev.Op == "toggle" {
			fired++
		}
	})
	defer unsubscribe()

	c.ToggleTool(id)
	if !c.IsToolVisible(id) {
		t.Fatal("first toggle should show")
	}
	c.ToggleTool(id)
	if c.IsToolVisible(id) {
		t.Fatal("second toggle should return to hidden")
	}
	if fired != 2 {
		t.Fatalf("listener should fire exactly twice, fired %d times", fired)
	}
}

func TestShowHide_NoOpDoesNotNotify(t *testing.T) {
	c := newCoordinator()
	id := InstanceID("ruler", "item1")
	c.RegisterTool(id, Meta{ToolID: "ruler", Band: catalog.BandNonModal})

	events := 0
	defer c.Subscribe(func(Event) { events++ })()

	c.HideTool(id) // already hidden
	c.ShowTool(id)
	c.ShowTool(id) // already visible
	if events != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", events)
	}
}

func TestZOrder_RecencyWithinBand(t *testing.T) {
	c := newCoordinator()
	ruler := InstanceID("ruler", "item1")
	guide := InstanceID("reading-guide", "item1")
	protractor := InstanceID("protractor", "item1")
	for _, id := range []string{ruler, guide, protractor} {
		c.RegisterTool(id, Meta{ToolID: id, Band: catalog.BandNonModal})
		c.ShowTool(id)
	}

	// Bring them forward in a scrambled order; the most recent must always
	// have the strictly greatest z within the band.
	order := []string{guide, ruler, protractor, ruler}
	for _, id := range order {
		c.BringToFront(id)
		top, _ := c.GetToolState(id)
		for _, other := range c.VisibleInstances() {
			if other.InstanceID == id {
				continue
			}
			if other.Meta.Band == catalog.BandNonModal && other.ZIndex >= top.ZIndex {
				t.Fatalf("%s (z=%d) not strictly above %s (z=%d)",
					id, top.ZIndex, other.InstanceID, other.ZIndex)
			}
		}
	}
}

func TestZOrder_BandsNeverOverlap(t *testing.T) {
	c := newCoordinator()
	ruler := InstanceID("ruler", "item1")
	calc := InstanceID("calculator", "item1")
	c.RegisterTool(ruler, Meta{ToolID: "ruler", Band: catalog.BandNonModal})
	c.RegisterTool(calc, Meta{ToolID: "calculator", Band: catalog.BandModal})
	c.ShowTool(calc)
	c.ShowTool(ruler)

	// The non-modal ruler was raised last, but modal tools always stack above.
	for i := 0; i < 5; i++ {
		c.BringToFront(ruler)
	}
	rs, _ := c.GetToolState(ruler)
	cs, _ := c.GetToolState(calc)
	if rs.ZIndex >= cs.ZIndex {
		t.Fatalf("non-modal tool (z=%d) stacked above modal tool (z=%d)", rs.ZIndex, cs.ZIndex)
	}

	min, max := BandRange(catalog.BandNonModal)
	if rs.ZIndex < min || rs.ZIndex > max {
		t.Fatalf("ruler z=%d escaped its band [%d,%d]", rs.ZIndex, min, max)
	}
}

func TestZOrder_RenumberOnBandExhaustion(t *testing.T) {
	c := newCoordinator()
	a := InstanceID("ruler", "item1")
	b := InstanceID("protractor", "item1")
	c.RegisterTool(a, Meta{ToolID: "ruler", Band: catalog.BandNonModal})
	c.RegisterTool(b, Meta{ToolID: "protractor", Band: catalog.BandNonModal})
	c.ShowTool(a)
	c.ShowTool(b)

	// Alternate long enough to exhaust the band counter several times over.
	for i := 0; i < 2500; i++ {
		if i%2 == 0 {
			c.BringToFront(a)
		} else {
			c.BringToFront(b)
		}
	}

	as, _ := c.GetToolState(a)
	bs, _ := c.GetToolState(b)
	min, max := BandRange(catalog.BandNonModal)
	if as.ZIndex < min || as.ZIndex > max || bs.ZIndex < min || bs.ZIndex > max {
		t.Fatalf("z-indexes escaped the band after renumbering: %d, %d", as.ZIndex, bs.ZIndex)
	}
	// Last raised was b (i=2499).
	if bs.ZIndex <= as.ZIndex {
		t.Fatalf("recency order lost across renumbering: a=%d b=%d", as.ZIndex, bs.ZIndex)
	}
}

func TestHideAllTools_SingleNotification(t *testing.T) {
	c := newCoordinator()
	for _, id := range []string{"ruler:item1", "calculator:item1", "dictionary:sec1"} {
		c.RegisterTool(id, Meta{ToolID: id, Band: catalog.BandModal})
		c.ShowTool(id)
	}

	events := 0
	defer c.Subscribe(func(ev Event) {
		if ev.Op == "hide_all" {
			events++
			if len(ev.Changed) != 3 {
				t.Fatalf("expected 3 changed instances, got %d", len(ev.Changed))
			}
		}
	})()

	c.HideAllTools()
	c.HideAllTools() // nothing visible anymore — no second event
	if events != 1 {
		t.Fatalf("expected a single hide_all notification, got %d", events)
	}
	if len(c.VisibleInstances()) != 0 {
		t.Fatal("instances still visible after HideAllTools")
	}
}

func TestSyncVisible_HidesDisallowed(t *testing.T) {
	c := newCoordinator()
	ruler := InstanceID("ruler", "item1")
	calc := InstanceID("calculator", "item1")
	c.RegisterTool(ruler, Meta{ToolID: "ruler", Band: catalog.BandNonModal})
	c.RegisterTool(calc, Meta{ToolID: "calculator", Band: catalog.BandModal})
	c.ShowTool(ruler)
	c.ShowTool(calc)

	// The student navigated to an item where the ruler fell out of the
	// allowed set; the coordinator must hide it.
	c.SyncVisible(map[string]struct{}{"calculator": {}})

	if c.IsToolVisible(ruler) {
		t.Fatal("instance outside the allowed set must be hidden")
	}
	if !c.IsToolVisible(calc) {
		t.Fatal("allowed instance must stay visible")
	}
}

func TestUnregisterTool_RemovesState(t *testing.T) {
	c := newCoordinator()
	id := InstanceID("answer-eliminator", "item5")
	c.RegisterTool(id, Meta{ToolID: "answer-eliminator", Band: catalog.BandNonModal, ScopeID: "item5"})
	c.ShowTool(id)

	c.UnregisterTool(id)
	if _, ok := c.GetToolState(id); ok {
		t.Fatal("state should be gone after unregister")
	}
	if got := c.InstancesInScope("item5"); len(got) != 0 {
		t.Fatalf("scope index should be empty, got %v", got)
	}
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	c := newCoordinator()
	id := InstanceID("ruler", "item1")
	c.RegisterTool(id, Meta{ToolID: "ruler", Band: catalog.BandNonModal})

	events := 0
	unsubscribe := c.Subscribe(func(Event) { events++ })
	c.ShowTool(id)
	unsubscribe()
	c.HideTool(id)

	if events != 1 {
		t.Fatalf("expected 1 event before unsubscribe, got %d", events)
	}
}
