package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidScene marks a record that cannot drive the downstream stages.
var ErrInvalidScene = errors.New("invalid scene")

// Background describes where the scene takes place.
type Background struct {
	Description string `json:"description"`
	TimeOfDay   string `json:"time_of_day"`
	Location    string `json:"location"`
}

// Character is one cast member.
type Character struct {
	Name        string `json:"name"`
	Age         string `json:"age,omitempty"`
	Description string `json:"description"`
	StyleHint   string `json:"style_hint,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

// Beat is one action/dialogue moment in the scene.
type Beat struct {
	Order           int     `json:"order"`
	Description     string  `json:"description"`
	Dialogue        string  `json:"dialogue,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Scene is the structured description produced by the structured_json stage.
type Scene struct {
	Title                 string      `json:"scene_title"`
	Logline               string      `json:"logline"`
	ArtStyle              string      `json:"art_style"`
	Background            Background  `json:"background"`
	Characters            []Character `json:"characters"`
	Beats                 []Beat      `json:"beats"`
	ImportantPlotElements []string    `json:"important_plot_elements,omitempty"`
}

// rawCharacter accepts the "prompt" spelling some models use for image_prompt.
type rawCharacter struct {
	Character
	Prompt string `json:"prompt"`
}

type rawScene struct {
	Scene
	Characters []rawCharacter `json:"characters"`
}

// Decode parses a scene record. Markdown code fences around the JSON are
// tolerated.
func Decode(data []byte) (Scene, error) {
	trimmed := stripFences(bytes.TrimSpace(data))
	if len(trimmed) == 0 {
		return Scene{}, fmt.Errorf("%w: empty record", ErrInvalidScene)
	}
	var raw rawScene
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Scene{}, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	sc := raw.Scene
	sc.Characters = make([]Character, 0, len(raw.Characters))
	for _, rc := range raw.Characters {
		c := rc.Character
		if c.ImagePrompt == "" {
			c.ImagePrompt = rc.Prompt
		}
		sc.Characters = append(sc.Characters, c)
	}
	return sc, nil
}

// Parse decodes and validates.
func Parse(data []byte) (Scene, error) {
	sc, err := Decode(data)
	if err != nil {
		return Scene{}, err
	}
	if err := sc.Validate(); err != nil {
		return Scene{}, err
	}
	return sc, nil
}

func stripFences(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("```")) {
		return data
	}
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	}
	data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("```"))
	return bytes.TrimSpace(data)
}

// Validate checks the fields downstream stages rely on.
func (s Scene) Validate() error {
	var problems []string
	if len(s.Beats) == 0 {
		problems = append(problems, "at least one beat is required")
	}
	for i, beat := range s.Beats {
		if strings.TrimSpace(beat.Description) == "" {
			problems = append(problems, fmt.Sprintf("beat %d has no description", i+1))
		}
		if beat.DurationSeconds < 0 {
			problems = append(problems, fmt.Sprintf("beat %d has a negative duration", i+1))
		}
	}
	for i, c := range s.Characters {
		if strings.TrimSpace(c.Name) == "" {
			problems = append(problems, fmt.Sprintf("character %d has no name", i+1))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidScene, strings.Join(problems, "; "))
	}
	return nil
}

// SortedBeats returns the beats ordered by Order, keeping the record order for
// ties and for beats without an explicit order.
func (s Scene) SortedBeats() []Beat {
	beats := slices.Clone(s.Beats)
	slices.SortStableFunc(beats, func(a, b Beat) int {
		switch {
		case a.Order == b.Order:
			return 0
		case a.Order == 0:
			return 1
		case b.Order == 0:
			return -1
		case a.Order < b.Order:
			return -1
		default:
			return 1
		}
	})
	return beats
}

// Canonical encodes the scene in its normalized form.
func (s Scene) Canonical() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode scene: %w", err)
	}
	return data, nil
}

// Pretty encodes the scene with indentation for prompts and files.
func (s Scene) Pretty() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// Setting returns the location, falling back to the background description.
func (s Scene) Setting() string {
	if loc := strings.TrimSpace(s.Background.Location); loc != "" {
		return loc
	}
	return strings.TrimSpace(s.Background.Description)
}
