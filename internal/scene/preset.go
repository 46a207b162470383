package scene

import (
	"context"

	"scenecraft/internal/provider"
)

// DevScene is the fixed "Factory Prank" scene used in dev mode so the
// downstream stages can be exercised without a structuring call.
func DevScene() Scene {
	return Scene{
		Title:    "Factory Prank",
		Logline:  "Three men in an early 1900s factory pull a playful prank on one of their own.",
		ArtStyle: "Friendly cartoon silent-film vibe, black-and-white, cel-shaded with grainy texture",
		Background: Background{
			Description: "A cavernous early 20th century factory with brick walls stained by soot, " +
				"rows of iron machines, belts, pistons, scattered wooden crates, " +
				"and hanging filament bulbs casting hard, dramatic shadows through ribbons of steam.",
			TimeOfDay: "Day",
			Location:  "Industrial factory interior",
		},
		Characters: []Character{
			{
				Name: "EDWARD",
				Age:  "Mid-30s",
				Description: "Tall, lean ringleader with a mischievous glint; grease-smudged face, flat cap tilted, " +
					"rolled sleeves, suspenders over oil-stained overalls, fingerless gloves and scuffed boots. " +
					"Quick, confident posture.",
				StyleHint: "Silent film, black-and-white portrait, crisp contrast, rim-lit edges",
			},
			{
				Name: "HARRY",
				Age:  "Late 20s",
				Description: "Stockier accomplice with a broad grin; suspenders, rolled sleeves, patched vest, thick moustache " +
					"dusted with coal, calloused hands, heavy work boots, relaxed stance.",
				StyleHint: "Silent film, black-and-white portrait, grainy texture, soft falloff",
			},
			{
				Name: "GEORGE",
				Age:  "Early 30s",
				Description: "Unsuspecting victim; neat cap and vest over a crisp shirt, pocket watch chain visible, tidy moustache, " +
					"cautious eyes; stands straighter, sleeves buttoned, gloves tucked in belt.",
				StyleHint: "Silent film, black-and-white portrait, subtle film grain, chiaroscuro lighting",
			},
		},
		Beats: []Beat{
			{
				Order: 1,
				Description: "Wide shot of the bustling factory; machinery thumps in the background as Edward and Harry share " +
					"a conspiratorial grin near a coiled air hose.",
			},
			{
				Order:       2,
				Description: "Close on Edward rigging a harmless air blast under George's workbench; Harry watches, barely containing laughter.",
			},
			{
				Order: 3,
				Description: "George approaches, adjusting his cap; Edward signals; Harry tugs the hidden lever. Compressed air whooshes " +
					"and a string pops up; George startles then smirks as the trio chuckles.",
			},
		},
		ImportantPlotElements: []string{"coiled air hose", "hidden lever under the workbench"},
	}
}

// PresetProvider answers structuring requests with DevScene.
type PresetProvider struct{}

func (PresetProvider) Name() string { return "preset" }

// Structure ignores the request and returns the dev scene.
func (PresetProvider) Structure(ctx context.Context, _ provider.StructuredRequest) (provider.StructuredResult, error) {
	if err := ctx.Err(); err != nil {
		return provider.StructuredResult{}, err
	}
	record, err := DevScene().Canonical()
	if err != nil {
		return provider.StructuredResult{}, err
	}
	return provider.StructuredResult{Record: record, Model: "dev-preset"}, nil
}
