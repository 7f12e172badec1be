package tools

import (
	"context"
	"testing"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"go.uber.org/zap"
)

func TestRegisterBuiltin(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cat := catalog.New(logger)
	RegisterBuiltin(cat)
	cat.Freeze()

	for _, d := range Builtin() {
		if cat.Get(d.ToolID) == nil {
			t.Fatalf("tool %q not registered", d.ToolID)
		}
		for _, supportID := range d.ExternalSupportIDs {
			toolID, ok := cat.ResolveToolID(supportID)
			if !ok || toolID != d.ToolID {
				t.Fatalf("support id %q should map to %q, got %q (%v)", supportID, d.ToolID, toolID, ok)
			}
		}
	}
}

func TestSupportIDsDisjoint(t *testing.T) {
	seen := make(map[string]string)
	for _, d := range Builtin() {
		for _, supportID := range d.ExternalSupportIDs {
			if prior, dup := seen[supportID]; dup {
				t.Fatalf("support id %q claimed by both %q and %q", supportID, prior, d.ToolID)
			}
			seen[supportID] = d.ToolID
		}
	}
}

func TestRulerRelevance(t *testing.T) {
	ruler := Ruler()

	geometry := &catalog.StructuralContext{
		Level:        catalog.LevelItem,
		ContentKinds: []string{"geometry"},
	}
	if !ruler.Relevant(geometry) {
		t.Fatal("ruler should be relevant on geometry content")
	}

	plainText := &catalog.StructuralContext{
		Level:        catalog.LevelPassage,
		ContentKinds: []string{"text"},
	}
	if ruler.Relevant(plainText) {
		t.Fatal("ruler should not be relevant on plain text")
	}
}

func TestMagnifierAlwaysRelevant(t *testing.T) {
	if !Magnifier().Relevant(&catalog.StructuralContext{Level: catalog.LevelItem}) {
		t.Fatal("magnifier should be relevant everywhere")
	}
}

func TestStaticLoad(t *testing.T) {
	impl, err := Calculator().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	aff, err := impl.NewAffordance(&catalog.StructuralContext{Level: catalog.LevelItem}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if aff.InstanceID() == "" {
		t.Fatal("affordance must have an instance id")
	}
	aff.Close()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Calculator().Load(canceled); err == nil {
		t.Fatal("canceled load should fail")
	}
}

func TestConfigSchemasCompile(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cat := catalog.New(logger)
	RegisterBuiltin(cat)

	for _, toolID := range []string{"calculator", "textToSpeech", "ruler"} {
		if cat.ConfigSchema(toolID) == nil {
			t.Fatalf("config schema for %q did not compile", toolID)
		}
	}
}
