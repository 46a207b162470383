package stagegraph

import (
	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
)

// Input, output and parameter keys used by the default pipeline.
const (
	KeyPremise        = "premise"
	KeyScriptText     = "script_text"
	KeyScene          = "scene"
	KeyCharacterImage = "character_image"
	KeyBeats          = "beats"
	KeyMusicTrack     = "music_track"
	KeySentiment      = "sentiment"
	KeyVideo          = "video"

	ParamTemperature    = "temperature"
	ParamSize           = "size"
	ParamRefinement     = "refinement"
	ParamReferenceNote  = "reference_note"
	ParamDirection      = "direction"
	ParamLengthSeconds  = "length_seconds"
	ParamTempo          = "tempo"
	ParamEnergy         = "energy"
	ParamIncludeVocals  = "include_vocals"
	ParamRefine         = "refine"
	ParamSentiment      = "sentiment"
	ParamMode           = "mode"
	ParamSecondsPerBeat = "seconds_per_beat"
)

// DefaultDefinitions declares script -> structured_json -> {character, music}
// -> video.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Stage:      stage.Script,
			Inputs:     []string{KeyPremise},
			Outputs:    []string{KeyScriptText},
			Editable:   []string{KeyScriptText},
			Params:     []string{ParamTemperature},
			Capability: provider.CapabilityChat,
		},
		{
			Stage:      stage.StructuredJSON,
			DependsOn:  []stage.ID{stage.Script},
			Inputs:     []string{KeyScriptText},
			Outputs:    []string{KeyScene},
			Editable:   []string{KeyScene},
			Capability: provider.CapabilityStructured,
		},
		{
			Stage:      stage.Character,
			DependsOn:  []stage.ID{stage.StructuredJSON},
			Inputs:     []string{KeyScene},
			Outputs:    []string{KeyCharacterImage, KeyBeats},
			Params:     []string{ParamSize, ParamRefinement, ParamReferenceNote},
			Capability: provider.CapabilityImage,
		},
		{
			Stage:      stage.Music,
			DependsOn:  []stage.ID{stage.StructuredJSON},
			Inputs:     []string{KeyScene},
			Outputs:    []string{KeyMusicTrack, KeySentiment},
			Params:     []string{ParamDirection, ParamLengthSeconds, ParamTempo, ParamEnergy, ParamIncludeVocals, ParamRefine, ParamSentiment},
			Capability: provider.CapabilityAudio,
		},
		{
			Stage:      stage.Video,
			DependsOn:  []stage.ID{stage.Character, stage.Music},
			Inputs:     []string{KeyCharacterImage, KeyMusicTrack, KeyBeats},
			Outputs:    []string{KeyVideo},
			Params:     []string{ParamMode, ParamSecondsPerBeat},
			Capability: provider.CapabilityVideo,
		},
	}
}

// Default builds the standard five-stage graph. A broken declaration is a
// programming error, so it panics.
func Default() *Graph {
	g, err := New(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return g
}
