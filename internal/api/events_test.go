package api

import (
	"testing"

	"github.com/brightpath-assess/toolgate/internal/chread"
)

func TestEventRowToResp_MergedTrailKeepsPerAliasSteps(t *testing.T) {
	// Two support ids mapped to one tool: the flattened trail concatenates
	// two precedence runs, so step numbering restarts mid-array.
	row := chread.EventRow{
		RequestID:     "req-1",
		DistrictID:    "d-1",
		ToolID:        "calculator",
		TrailSteps:    []uint8{1, 9, 1, 9},
		TrailRules:    []string{"district_block", "default_deny", "district_block", "default_deny"},
		TrailSupports: []string{"calculator", "calculator", "calc-basic", "calc-basic"},
		TrailActions:  []string{"skip", "block", "skip", "block"},
		TrailReasons:  []string{"no match", "not configured", "no match", "not configured"},
		TrailSources:  []string{"district_policy", "system", "district_policy", "system"},
	}

	resp := eventRowToResp(row)
	if len(resp.Trail) != 4 {
		t.Fatalf("expected 4 trail entries, got %d", len(resp.Trail))
	}
	wantSteps := []int{1, 9, 1, 9}
	for i, e := range resp.Trail {
		if e.Step != wantSteps[i] {
			t.Fatalf("entry %d: step %d, want %d", i, e.Step, wantSteps[i])
		}
	}
	if resp.Trail[2].SupportID != "calc-basic" {
		t.Fatalf("support id misaligned: %+v", resp.Trail[2])
	}
}

func TestEventRowToResp_LegacyRowsFallBackToPositionalSteps(t *testing.T) {
	row := chread.EventRow{
		RequestID:  "req-2",
		DistrictID: "d-1",
		ToolID:     "textToSpeech",
		TrailRules: []string{"district_block", "administration_block"},
	}

	resp := eventRowToResp(row)
	if len(resp.Trail) != 2 {
		t.Fatalf("expected 2 trail entries, got %d", len(resp.Trail))
	}
	if resp.Trail[0].Step != 1 || resp.Trail[1].Step != 2 {
		t.Fatalf("positional fallback wrong: %+v", resp.Trail)
	}
}
