package scene

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scenecraft/internal/provider"
)

func TestDecodeToleratesFencesAndPromptAlias(t *testing.T) {
	raw := "```json\n{\"scene_title\":\"T\",\"characters\":[{\"name\":\"A\",\"prompt\":\"portrait\"}],\"beats\":[{\"order\":1,\"description\":\"x\"}]}\n```"
	sc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sc.Title != "T" || len(sc.Characters) != 1 || sc.Characters[0].ImagePrompt != "portrait" {
		t.Fatalf("unexpected scene %+v", sc)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		scene Scene
		ok    bool
	}{
		{"dev scene", DevScene(), true},
		{"no beats", Scene{Title: "x"}, false},
		{"empty beat", Scene{Beats: []Beat{{Order: 1}}}, false},
		{"unnamed character", Scene{Beats: []Beat{{Description: "a"}}, Characters: []Character{{Description: "d"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scene.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidScene) {
				t.Fatalf("expected ErrInvalidScene, got %v", err)
			}
		})
	}
	if _, err := Decode([]byte("not json")); !errors.Is(err, ErrInvalidScene) {
		t.Fatalf("expected ErrInvalidScene for garbage, got %v", err)
	}
}

func TestSortedBeats(t *testing.T) {
	sc := Scene{Beats: []Beat{
		{Order: 0, Description: "unordered"},
		{Order: 3, Description: "third"},
		{Order: 1, Description: "first"},
	}}
	got := sc.SortedBeats()
	want := []string{"first", "third", "unordered"}
	for i, beat := range got {
		if beat.Description != want[i] {
			t.Fatalf("beat %d = %q, want %q", i, beat.Description, want[i])
		}
	}
	if sc.Beats[0].Description != "unordered" {
		t.Fatal("SortedBeats must not reorder the scene")
	}
}

func TestCompositeImagePrompt(t *testing.T) {
	sc := DevScene()
	prompt := CompositeImagePrompt(sc)
	for _, want := range []string{
		"illustration in Friendly cartoon silent-film vibe",
		"Setting: Industrial factory interior, time: Day.",
		"EDWARD: Tall, lean ringleader",
		"Important plot elements to show clearly: coiled air hose; hidden lever under the workbench.",
		"No text, no captions, no watermarks.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	sc.ArtStyle = "Photorealistic"
	if !strings.Contains(CompositeImagePrompt(sc), "Photorealistic; friendly 2D animation, cel-shaded, cartoon, non-realistic") {
		t.Fatal("expected cartoon fallback appended to non-cartoon style")
	}
}

func TestCompositionPrompt(t *testing.T) {
	sc := DevScene()
	prompt := CompositionPrompt(sc, MusicOptions{Sentiment: "playful", LengthSeconds: 30, IncludeVocals: true})
	for _, want := range []string{
		"Scene mood/sentiment: playful",
		"Setting: Industrial factory interior at Day",
		"Target length: ~30 seconds",
		"Vocals: include vocals/humming",
		"Tempo: moderate",
		"Energy: balanced",
		"User direction: None provided.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Refine") {
		t.Fatal("fresh prompt should not mention refinement")
	}

	refined := CompositionPrompt(sc, MusicOptions{Sentiment: "playful", Refine: true, PreviousPrompt: "piano"})
	if !strings.Contains(refined, "Refine the previous track while keeping core motifs.\nPrevious track guidance: piano") {
		t.Fatalf("unexpected refine prompt:\n%s", refined)
	}
}

func TestSegments(t *testing.T) {
	sc := DevScene()
	sc.Beats[1].DurationSeconds = 6
	segments := Segments(sc, 0)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0].Title != "Factory Prank - Beat 1/3" || segments[0].Seconds != DefaultSecondsPerBeat {
		t.Fatalf("unexpected first segment %+v", segments[0])
	}
	if segments[1].Seconds != 6 {
		t.Fatalf("expected beat duration to win, got %v", segments[1].Seconds)
	}
	if !strings.HasPrefix(segments[2].Prompt, "Create a coherent cinematic sequence in") {
		t.Fatalf("unexpected segment prompt %q", segments[2].Prompt)
	}
}

func TestPresetProvider(t *testing.T) {
	res, err := PresetProvider{}.Structure(context.Background(), provider.StructuredRequest{})
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	sc, err := Parse(res.Record)
	if err != nil {
		t.Fatalf("Parse preset: %v", err)
	}
	if sc.Title != "Factory Prank" || len(sc.Characters) != 3 {
		t.Fatalf("unexpected preset %+v", sc)
	}
}
