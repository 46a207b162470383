package stagegraph

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
)

func TestDefaultGraphShape(t *testing.T) {
	g := Default()

	order := g.Order()
	want := []stage.ID{stage.Script, stage.StructuredJSON, stage.Character, stage.Music, stage.Video}
	if !slices.Equal(order, want) {
		t.Fatalf("Order = %v, want %v", order, want)
	}

	deps := map[stage.ID][]stage.ID{
		stage.Script:         nil,
		stage.StructuredJSON: {stage.Script},
		stage.Character:      {stage.StructuredJSON},
		stage.Music:          {stage.StructuredJSON},
		stage.Video:          {stage.Character, stage.Music},
	}
	for id, expected := range deps {
		if got := g.DependenciesOf(id); !slices.Equal(got, expected) {
			t.Fatalf("DependenciesOf(%s) = %v, want %v", id, got, expected)
		}
	}

	if got := g.ProviderCapability(stage.Music); got != provider.CapabilityAudio {
		t.Fatalf("music capability = %s", got)
	}
	if got := g.RequiredInputKeys(stage.Video); !slices.Contains(got, KeyMusicTrack) {
		t.Fatalf("video inputs = %v", got)
	}
	if got := g.EditableKeys(stage.Script); !slices.Equal(got, []string{KeyScriptText}) {
		t.Fatalf("script editable = %v", got)
	}
}

func TestDownstream(t *testing.T) {
	g := Default()
	cases := map[stage.ID][]stage.ID{
		stage.Script:         {stage.StructuredJSON, stage.Character, stage.Music, stage.Video},
		stage.StructuredJSON: {stage.Character, stage.Music, stage.Video},
		stage.Character:      {stage.Video},
		stage.Music:          {stage.Video},
		stage.Video:          {},
	}
	for id, want := range cases {
		if got := g.Downstream(id); !slices.Equal(got, want) {
			t.Fatalf("Downstream(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestProducer(t *testing.T) {
	g := Default()
	if dep, ok := g.Producer(stage.Video, KeyBeats); !ok || dep != stage.Character {
		t.Fatalf("Producer(video, beats) = %s, %v", dep, ok)
	}
	if _, ok := g.Producer(stage.Script, KeyPremise); ok {
		t.Fatal("premise is a root input with no producer")
	}
}

func TestNewRejectsCycle(t *testing.T) {
	_, err := New(
		Definition{Stage: "a", DependsOn: []stage.ID{"c"}, Capability: provider.CapabilityChat},
		Definition{Stage: "b", DependsOn: []stage.ID{"a"}, Capability: provider.CapabilityChat},
		Definition{Stage: "c", DependsOn: []stage.ID{"b"}, Capability: provider.CapabilityChat},
	)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> c -> a") {
		t.Fatalf("unexpected cycle witness: %v", err)
	}
}

func TestNewRejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"duplicate", []Definition{
			{Stage: "a", Capability: provider.CapabilityChat},
			{Stage: "a", Capability: provider.CapabilityChat},
		}},
		{"unknown dependency", []Definition{
			{Stage: "a", DependsOn: []stage.ID{"missing"}, Capability: provider.CapabilityChat},
		}},
		{"missing capability", []Definition{{Stage: "a"}}},
		{"unproduced input", []Definition{
			{Stage: "a", Outputs: []string{"x"}, Capability: provider.CapabilityChat},
			{Stage: "b", DependsOn: []stage.ID{"a"}, Inputs: []string{"y"}, Capability: provider.CapabilityChat},
		}},
		{"editable not produced", []Definition{
			{Stage: "a", Outputs: []string{"x"}, Editable: []string{"z"}, Capability: provider.CapabilityChat},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs...)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
		})
	}
}

func TestDefinitionIsCopied(t *testing.T) {
	g := Default()
	def, ok := g.Definition(stage.Script)
	if !ok {
		t.Fatal("missing script definition")
	}
	def.Inputs[0] = "mutated"
	if g.RequiredInputKeys(stage.Script)[0] != KeyPremise {
		t.Fatal("graph definition was mutated through a copy")
	}
}
