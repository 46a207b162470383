package scene

import (
	"fmt"
	"strings"

	"scenecraft/internal/provider"
)

const (
	ScriptTemperature    = 0.7
	StructureTemperature = 0.3
	SentimentTemperature = 0.4

	DefaultMusicDirection = "Old-timey silent-film piano underscore: playful, bouncy, with clear melody and period feel."
	DefaultTempo          = "moderate"
	DefaultEnergy         = "balanced"
	DefaultMusicSeconds   = 45
	DefaultSecondsPerBeat = 4
)

// ScriptSystemPrompt steers the chat model toward short, production-ready
// scripts.
const ScriptSystemPrompt = "You are a screenwriting assistant. Always return a concise, film-ready script " +
	"that includes: (1) character names with clear descriptions/personality cues, " +
	"(2) scene background description (time, place, mood), (3) an explicit art style " +
	"tag such as realistic, 3d, watercolor, anime, comic, or painterly, and " +
	"(4) brief, production-friendly dialogue/action beats. Keep it ~20-40 seconds " +
	"of content unless the user asks otherwise."

// StructureSystemPrompt describes the JSON record the structured_json stage
// must return.
const StructureSystemPrompt = "Return only valid JSON describing the scene. Keys: " +
	"scene_title (string), logline (string), art_style (string), " +
	"background (object: description, time_of_day, location), " +
	"characters (array of objects: name, age, description, style_hint, image_prompt), " +
	"beats (array of objects: order, description, dialogue), " +
	"important_plot_elements (array of strings). Keep prompts concise."

// MusicDirectorPrompt asks for a short mood and scoring direction.
const MusicDirectorPrompt = "You are a music director. Given structured scene JSON, " +
	"return a concise mood and musical direction for a short score. " +
	"Focus on tempo, intensity, genre cues, and instrumentation. " +
	"Keep it under 75 words."

// StructureUserPrompt wraps the script for the structured_json stage.
func StructureUserPrompt(script string) string {
	return "Structure this script into JSON for downstream image generation. Script:\n" + script
}

// SentimentUserPrompt hands the scene to the music director.
func SentimentUserPrompt(s Scene) string {
	return "Scene JSON:\n" + s.Pretty()
}

var cartoonMarkers = []string{"cartoon", "animation", "anime", "comic"}

func compositeStyle(artStyle string) string {
	style := strings.TrimSpace(artStyle)
	if style == "" {
		return "friendly 2D animation, cel-shaded, cartoon"
	}
	lower := strings.ToLower(style)
	for _, marker := range cartoonMarkers {
		if strings.Contains(lower, marker) {
			return style
		}
	}
	return style + "; friendly 2D animation, cel-shaded, cartoon, non-realistic"
}

func beatSummary(beats []Beat, limit int) string {
	if limit > 0 && len(beats) > limit {
		beats = beats[:limit]
	}
	parts := make([]string, 0, len(beats))
	for _, b := range beats {
		parts = append(parts, strings.TrimSpace(b.Description))
	}
	return strings.Join(parts, "; ")
}

func characterLines(chars []Character) string {
	parts := make([]string, 0, len(chars))
	for _, c := range chars {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = "Character"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.TrimSpace(c.Description)))
	}
	return strings.Join(parts, "; ")
}

// CompositeImagePrompt describes one illustration showing the whole cast in
// the scene's setting.
func CompositeImagePrompt(s Scene) string {
	timeOfDay := strings.TrimSpace(s.Background.TimeOfDay)
	if timeOfDay == "" {
		timeOfDay = "Day"
	}
	var plot []string
	for _, elem := range s.ImportantPlotElements {
		if elem = strings.TrimSpace(elem); elem != "" {
			plot = append(plot, elem)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "One cinematic, high-resolution illustration in %s style showing all main characters together. ", compositeStyle(s.ArtStyle))
	fmt.Fprintf(&b, "Setting: %s, time: %s. ", s.Setting(), timeOfDay)
	fmt.Fprintf(&b, "Characters: %s. ", characterLines(s.Characters))
	fmt.Fprintf(&b, "Mood and action: %s. ", beatSummary(s.SortedBeats(), 4))
	if len(plot) > 0 {
		fmt.Fprintf(&b, "Important plot elements to show clearly: %s. ", strings.Join(plot, "; "))
	}
	b.WriteString("Full scene in one frame, cohesive lighting, consistent style across characters and environment. ")
	b.WriteString("No text, no captions, no watermarks.")
	return b.String()
}

// MusicOptions are the user-tunable parts of a composition prompt.
type MusicOptions struct {
	Sentiment      string
	Direction      string
	LengthSeconds  int
	Tempo          string
	Energy         string
	IncludeVocals  bool
	Refine         bool
	PreviousPrompt string
}

// CompositionPrompt builds the music generation prompt from the scene and the
// chosen options.
func CompositionPrompt(s Scene, opts MusicOptions) string {
	length := opts.LengthSeconds
	if length <= 0 {
		length = DefaultMusicSeconds
	}
	vocals := "instrumental only"
	if opts.IncludeVocals {
		vocals = "include vocals/humming"
	}
	direction := strings.TrimSpace(opts.Direction)
	if direction == "" {
		direction = "None provided."
	}
	lines := []string{
		"Scene mood/sentiment: " + strings.TrimSpace(opts.Sentiment),
		"Logline: " + s.Logline,
		"Art style: " + s.ArtStyle,
		fmt.Sprintf("Setting: %s at %s", s.Background.Location, s.Background.TimeOfDay),
		"Key beats: " + beatSummary(s.SortedBeats(), 6),
		fmt.Sprintf("Target length: ~%d seconds", length),
		"Vocals: " + vocals,
		"Tempo: " + orDefault(opts.Tempo, DefaultTempo),
		"Energy: " + orDefault(opts.Energy, DefaultEnergy),
		"User direction: " + direction,
	}
	if opts.Refine {
		lines = append(lines, "Refine the previous track while keeping core motifs.")
		if prev := strings.TrimSpace(opts.PreviousPrompt); prev != "" {
			lines = append(lines, "Previous track guidance: "+prev)
		}
	}
	return strings.Join(lines, "\n")
}

// SegmentPrompt describes the video clip for a slice of beats.
func SegmentPrompt(s Scene, beats []Beat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a coherent cinematic sequence in %s style. ", s.ArtStyle)
	fmt.Fprintf(&b, "Setting: %s. Environment detail: %s. ", s.Setting(), s.Background.Description)
	fmt.Fprintf(&b, "Characters: %s. ", characterLines(s.Characters))
	fmt.Fprintf(&b, "Story beats: %s. ", beatSummary(beats, 0))
	for _, beat := range beats {
		if d := strings.TrimSpace(beat.Dialogue); d != "" {
			fmt.Fprintf(&b, "Dialogue: %s. ", d)
		}
	}
	b.WriteString("Include natural spoken dialogue and ambient sound that fits the setting; avoid on-screen text or subtitles.")
	return b.String()
}

// Segments splits the scene into one timed video segment per beat. Beats
// without their own duration get secondsPerBeat.
func Segments(s Scene, secondsPerBeat float64) []provider.Segment {
	if secondsPerBeat <= 0 {
		secondsPerBeat = DefaultSecondsPerBeat
	}
	beats := s.SortedBeats()
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Scene"
	}
	out := make([]provider.Segment, 0, len(beats))
	for i, beat := range beats {
		seconds := beat.DurationSeconds
		if seconds <= 0 {
			seconds = secondsPerBeat
		}
		out = append(out, provider.Segment{
			Index:       i + 1,
			Title:       fmt.Sprintf("%s - Beat %d/%d", title, i+1, len(beats)),
			Description: strings.TrimSpace(beat.Description),
			Prompt:      SegmentPrompt(s, []Beat{beat}),
			Seconds:     seconds,
		})
	}
	return out
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
