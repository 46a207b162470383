package stage

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scenecraft/internal/services"
)

// ID names one step of the generation pipeline.
type ID string

const (
	Script         ID = "script"
	StructuredJSON ID = "structured_json"
	Character      ID = "character"
	Music          ID = "music"
	Video          ID = "video"
)

// All returns every stage in pipeline order.
func All() []ID {
	return []ID{Script, StructuredJSON, Character, Music, Video}
}

// Valid reports whether id is a known stage.
func (id ID) Valid() bool {
	switch id {
	case Script, StructuredJSON, Character, Music, Video:
		return true
	}
	return false
}

func (id ID) String() string { return string(id) }

var titleCaser = cases.Title(language.Und)

// Title returns a display label such as "Structured JSON".
func (id ID) Title() string {
	words := strings.Fields(strings.ReplaceAll(string(id), "_", " "))
	for i, word := range words {
		if strings.EqualFold(word, "json") {
			words[i] = "JSON"
			continue
		}
		words[i] = titleCaser.String(word)
	}
	return strings.Join(words, " ")
}

// Parse resolves user input to a stage. Dashes, spaces, and case are ignored,
// and "json"/"structure" are accepted for structured_json.
func Parse(raw string) (ID, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "json", "structure", "structured", "scene":
		return StructuredJSON, nil
	case "characters", "image":
		return Character, nil
	}
	id := ID(normalized)
	if !id.Valid() {
		return "", services.Wrap(services.ErrValidation, "", "parse stage", fmt.Sprintf("unknown stage %q", raw), nil)
	}
	return id, nil
}
