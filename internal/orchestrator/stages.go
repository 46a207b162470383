package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/provider"
	"scenecraft/internal/retry"
	"scenecraft/internal/scene"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

// call runs op under the retry policy and adds the attempts to out.
func (o *Orchestrator) call(ctx context.Context, logger *slog.Logger, out *output, name string, op func(ctx context.Context) error) error {
	attempts, err := o.policy.Do(ctx,
		func(ctx context.Context, _ int) error { return op(ctx) },
		func(err error) retry.Decision {
			failure := provider.Classify(name, err)
			if failure == nil {
				return retry.Decision{}
			}
			return retry.Decision{Retry: failure.Retryable(), After: failure.RetryAfter}
		},
		func(attempt int, delay time.Duration, err error) {
			logging.WarnWithContext(logger, "provider retry scheduled", "provider_retry",
				logging.String("provider", name),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stage run delayed"),
			)
		},
	)
	out.attempts += attempts
	return err
}

// providerFailure converts a provider call error into a RunError.
func providerFailure(ctx context.Context, id stage.ID, name string, attempts int, err error) *RunError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &RunError{Stage: id, Attempts: attempts, Provider: name, Err: err}
	}
	failure := provider.Classify(name, err)
	if failure == nil {
		return &RunError{Stage: id, Attempts: attempts, Provider: name, Err: err}
	}
	marker := services.ErrProviderRejected
	if failure.Retryable() {
		marker = services.ErrProviderTransient
	}
	providerName := failure.Provider
	if providerName == "" {
		providerName = name
	}
	return &RunError{
		Stage:    id,
		Marker:   marker,
		Attempts: attempts,
		Kind:     failure.Kind,
		Provider: providerName,
		Message:  fmt.Sprintf("%s %s", providerName, failure.Kind),
		Err:      err,
	}
}

func notConfigured(id stage.ID, what string) *RunError {
	return &RunError{Stage: id, Marker: services.ErrConfiguration, Message: "no " + what + " provider configured"}
}

func invalidInput(id stage.ID, key string, err error) *RunError {
	return &RunError{Stage: id, Marker: services.ErrValidation, Message: "invalid " + key, Err: err}
}

func (o *Orchestrator) manualOutput(p *plan) (output, error) {
	out := output{provider: ManualProvider, manual: true}
	for key, value := range p.manual {
		switch key {
		case stagegraph.KeyScriptText:
			out.payload.Text = strings.TrimSpace(value)
		case stagegraph.KeyScene:
			sc, err := scene.Parse([]byte(value))
			if err != nil {
				return out, invalidInput(p.stage, key, err)
			}
			record, err := sc.Canonical()
			if err != nil {
				return out, invalidInput(p.stage, key, err)
			}
			out.payload.Record = record
		default:
			return out, &RunError{Stage: p.stage, Marker: services.ErrValidation, Message: "manual edits are not supported for " + key}
		}
	}
	return out, nil
}

func (o *Orchestrator) runScript(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	chat := o.providers.Chat
	if chat == nil {
		return output{}, notConfigured(p.stage, "chat")
	}
	name := provider.NameOf(chat, "chat")
	temperature, _ := paramFloat(p.params, stagegraph.ParamTemperature, scene.ScriptTemperature)
	req := provider.ChatRequest{
		System:      scene.ScriptSystemPrompt,
		Messages:    []provider.Message{{Role: "user", Content: p.inputs[stagegraph.KeyPremise]}},
		Temperature: temperature,
	}

	out := output{provider: name}
	var text string
	err := o.call(ctx, logger, &out, name, func(ctx context.Context) error {
		res, err := chat.Chat(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(res.Text)
		if text == "" {
			return provider.Fail(name, provider.KindTransient, "empty script", nil)
		}
		return nil
	})
	if err != nil {
		return out, providerFailure(ctx, p.stage, name, out.attempts, err)
	}
	out.payload.Text = text
	return out, nil
}

func (o *Orchestrator) runStructure(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	structured := o.providers.Structured
	if structured == nil {
		return output{}, notConfigured(p.stage, "structured")
	}
	name := provider.NameOf(structured, "structured")
	req := provider.StructuredRequest{
		System:      scene.StructureSystemPrompt,
		Prompt:      scene.StructureUserPrompt(p.inputs[stagegraph.KeyScriptText]),
		Temperature: scene.StructureTemperature,
	}

	out := output{provider: name}
	var record json.RawMessage
	err := o.call(ctx, logger, &out, name, func(ctx context.Context) error {
		res, err := structured.Structure(ctx, req)
		if err != nil {
			return err
		}
		sc, err := scene.Parse(res.Record)
		if err != nil {
			return provider.Fail(name, provider.KindTransient, "scene record failed validation", err)
		}
		record, err = sc.Canonical()
		return err
	})
	if err != nil {
		return out, providerFailure(ctx, p.stage, name, out.attempts, err)
	}
	out.payload.Record = record
	return out, nil
}

func (o *Orchestrator) runCharacter(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	images := o.providers.Image
	if images == nil {
		return output{}, notConfigured(p.stage, "image")
	}
	sc, err := scene.Parse([]byte(p.inputs[stagegraph.KeyScene]))
	if err != nil {
		return output{}, invalidInput(p.stage, stagegraph.KeyScene, err)
	}
	beats, err := sc.Canonical()
	if err != nil {
		return output{}, invalidInput(p.stage, stagegraph.KeyScene, err)
	}
	name := provider.NameOf(images, "image")
	prompt := scene.CompositeImagePrompt(sc)
	if refinement := strings.TrimSpace(p.params[stagegraph.ParamRefinement]); refinement != "" {
		prompt += "\nRefine: " + refinement
	}
	size := p.params[stagegraph.ParamSize]
	if size == "" {
		size = o.imageSize
	}
	req := provider.ImageRequest{
		Prompt:        prompt,
		Size:          size,
		ReferenceNote: p.params[stagegraph.ParamReferenceNote],
	}

	out := output{provider: name}
	var res provider.ImageResult
	err = o.call(ctx, logger, &out, name, func(ctx context.Context) error {
		var err error
		res, err = images.GenerateImage(ctx, req)
		return err
	})
	if err != nil {
		return out, providerFailure(ctx, p.stage, name, out.attempts, err)
	}
	out.pending = []pendingBlob{{data: res.Data, mediaType: orDefault(res.MediaType, "image/png")}}
	out.payload.Record = beats
	out.payload.Meta = map[string]string{"prompt": prompt, "size": size}
	return out, nil
}

func (o *Orchestrator) runMusic(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	audio := o.providers.Audio
	if audio == nil {
		return output{}, notConfigured(p.stage, "audio")
	}
	sc, err := scene.Parse([]byte(p.inputs[stagegraph.KeyScene]))
	if err != nil {
		return output{}, invalidInput(p.stage, stagegraph.KeyScene, err)
	}

	out := output{}
	sentiment := p.params[stagegraph.ParamSentiment]
	if sentiment == "" {
		chat := o.providers.Chat
		if chat == nil {
			return out, notConfigured(p.stage, "chat")
		}
		chatName := provider.NameOf(chat, "chat")
		req := provider.ChatRequest{
			System:      scene.MusicDirectorPrompt,
			Messages:    []provider.Message{{Role: "user", Content: scene.SentimentUserPrompt(sc)}},
			Temperature: scene.SentimentTemperature,
		}
		err := o.call(ctx, logger, &out, chatName, func(ctx context.Context) error {
			res, err := chat.Chat(ctx, req)
			if err != nil {
				return err
			}
			sentiment = strings.TrimSpace(res.Text)
			return nil
		})
		if err != nil {
			return out, providerFailure(ctx, p.stage, chatName, out.attempts, err)
		}
	}

	lengthSeconds, _ := paramInt(p.params, stagegraph.ParamLengthSeconds, o.musicLengthMS/1000)
	includeVocals, _ := paramBool(p.params, stagegraph.ParamIncludeVocals, false)
	refine, _ := paramBool(p.params, stagegraph.ParamRefine, false)
	opts := scene.MusicOptions{
		Sentiment:     sentiment,
		Direction:     orDefault(p.params[stagegraph.ParamDirection], scene.DefaultMusicDirection),
		LengthSeconds: lengthSeconds,
		Tempo:         p.params[stagegraph.ParamTempo],
		Energy:        p.params[stagegraph.ParamEnergy],
		IncludeVocals: includeVocals,
		Refine:        refine,
	}
	if refine {
		opts.PreviousPrompt = p.previous.Payload.Meta["prompt"]
	}
	prompt := scene.CompositionPrompt(sc, opts)

	name := provider.NameOf(audio, "audio")
	out.provider = name
	req := provider.AudioRequest{Prompt: prompt, LengthMS: lengthSeconds * 1000, Refine: refine}
	var res provider.AudioResult
	err = o.call(ctx, logger, &out, name, func(ctx context.Context) error {
		var err error
		res, err = audio.GenerateAudio(ctx, req)
		return err
	})
	if err != nil {
		return out, providerFailure(ctx, p.stage, name, out.attempts, err)
	}
	out.pending = []pendingBlob{{data: res.Data, mediaType: orDefault(res.MediaType, "audio/mpeg")}}
	out.payload.Meta = map[string]string{
		"sentiment":      sentiment,
		"prompt":         prompt,
		"length_seconds": strconv.Itoa(lengthSeconds),
	}
	return out, nil
}

func (o *Orchestrator) runVideo(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	mode := strings.ToLower(orDefault(p.params[stagegraph.ParamMode], o.video.Mode))
	assembler := o.providers.Video[mode]
	if assembler == nil {
		return output{}, notConfigured(p.stage, mode+" video")
	}
	secondsPerBeat, _ := paramFloat(p.params, stagegraph.ParamSecondsPerBeat, o.video.SecondsPerBeat)
	sc, err := scene.Parse([]byte(p.inputs[stagegraph.KeyBeats]))
	if err != nil {
		return output{}, invalidInput(p.stage, stagegraph.KeyBeats, err)
	}
	image, err := o.asset(p, stagegraph.KeyCharacterImage, stage.Character)
	if err != nil {
		return output{}, err
	}
	audio, err := o.asset(p, stagegraph.KeyMusicTrack, stage.Music)
	if err != nil {
		return output{}, err
	}
	segments := scene.Segments(sc, secondsPerBeat)
	req := provider.VideoRequest{
		Image:    image,
		Audio:    audio,
		Segments: segments,
		Width:    o.video.Width,
		Height:   o.video.Height,
		FPS:      o.video.FPS,
	}

	name := provider.NameOf(assembler, mode+"-video")
	out := output{provider: name}
	var res provider.VideoResult
	err = o.call(ctx, logger, &out, name, func(ctx context.Context) error {
		var err error
		res, err = assembler.AssembleVideo(ctx, req)
		return err
	})
	if err != nil {
		return out, providerFailure(ctx, p.stage, name, out.attempts, err)
	}
	out.pending = []pendingBlob{{data: res.Data, mediaType: orDefault(res.MediaType, "video/mp4")}}
	out.payload.Meta = map[string]string{
		"mode":             mode,
		"seconds_per_beat": strconv.FormatFloat(secondsPerBeat, 'f', -1, 64),
		"segments":         strconv.Itoa(len(segments)),
	}
	return out, nil
}

// asset loads a blob input for a collaborator.
func (o *Orchestrator) asset(p *plan, key string, producer stage.ID) (provider.Asset, error) {
	ref := p.blobs[key]
	data, err := o.blobs.Read(ref)
	if err != nil {
		marker := services.ErrNotFound
		if !errors.Is(err, blobstore.ErrNotFound) {
			marker = nil
		}
		return provider.Asset{}, &RunError{Stage: p.stage, Marker: marker, Dependency: producer, Message: "read " + key, Err: err}
	}
	return provider.Asset{Key: ref.Key, MediaType: ref.MediaType, Data: data}, nil
}

// Music length bounds, in seconds, accepted by the composition API.
const (
	minMusicSeconds = 10
	maxMusicSeconds = 90
)

// checkParams rejects parameter values that do not parse or fall outside
// the range a provider accepts.
func checkParams(params map[string]string) error {
	var problems []error
	if v, err := paramFloat(params, stagegraph.ParamTemperature, 0); err != nil {
		problems = append(problems, err)
	} else if v < 0 || v > 2 {
		problems = append(problems, fmt.Errorf("%s must be between 0 and 2", stagegraph.ParamTemperature))
	}
	if v, err := paramInt(params, stagegraph.ParamLengthSeconds, minMusicSeconds); err != nil {
		problems = append(problems, err)
	} else if v < minMusicSeconds || v > maxMusicSeconds {
		problems = append(problems, fmt.Errorf("%s must be between %d and %d", stagegraph.ParamLengthSeconds, minMusicSeconds, maxMusicSeconds))
	}
	if v, err := paramFloat(params, stagegraph.ParamSecondsPerBeat, 1); err != nil {
		problems = append(problems, err)
	} else if v <= 0 {
		problems = append(problems, fmt.Errorf("%s must be positive", stagegraph.ParamSecondsPerBeat))
	}
	for _, key := range []string{stagegraph.ParamIncludeVocals, stagegraph.ParamRefine} {
		if _, err := paramBool(params, key, false); err != nil {
			problems = append(problems, err)
		}
	}
	return errors.Join(problems...)
}

func paramFloat(params map[string]string, key string, fallback float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback, fmt.Errorf("%s: %q is not a finite number", key, raw)
	}
	return v, nil
}

func paramInt(params map[string]string, key string, fallback int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func paramBool(params map[string]string, key string, fallback bool) (bool, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, raw)
	}
	return v, nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
