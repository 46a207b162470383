package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/respcache"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

// plan is a validated run request with its inputs resolved.
type plan struct {
	stage    stage.ID
	def      stagegraph.Definition
	runID    string
	upstream []artifact.Link
	inputs   map[string]string
	blobs    map[string]blobstore.Ref
	params   map[string]string
	// overridden lists input keys replaced by user values for this run.
	overridden []string
	// manual holds hand-edited values for the stage's own outputs.
	manual   map[string]string
	previous artifact.Artifact
}

type pendingBlob struct {
	data      []byte
	mediaType string
}

// output is what a stage produced before it is committed.
type output struct {
	payload     artifact.Payload
	pending     []pendingBlob
	provider    string
	attempts    int
	cacheHit    bool
	manual      bool
	fingerprint string
}

// Run executes one stage. On success the new artifact is committed and the
// report lists the downstream stages it demoted. On failure the store is
// unchanged and the error is a *RunError.
func (o *Orchestrator) Run(ctx context.Context, id stage.ID, overrides Overrides) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := o.newID()
	ctx = services.WithRunID(services.WithStage(ctx, string(id)), runID)
	if o.sessionID != "" {
		ctx = services.WithSessionID(ctx, o.sessionID)
	}
	logger := logging.WithContext(ctx, o.logger)

	if !o.running.CompareAndSwap(false, true) {
		err := &RunError{Stage: id, Marker: services.ErrRunInProgress, Message: "another run is in flight for this session"}
		logging.WarnWithContext(logger, "stage run rejected", "run_in_progress",
			logging.String(logging.FieldErrorHint, Hint(err)),
			logging.String(logging.FieldImpact, "request ignored"),
		)
		return Report{}, err
	}
	defer o.running.Store(false)

	p, err := o.prepare(id, overrides, runID)
	if err != nil {
		o.logFailure(logger, err)
		return Report{}, err
	}

	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("capability", string(p.def.Capability)),
		logging.Bool("manual", len(p.manual) > 0),
		logging.Strings("overrides", overrides.Keys()),
	)
	start := o.clock()

	out, err := o.produce(ctx, p, logger)
	if err != nil {
		o.logFailure(logger, err)
		return Report{Attempts: out.attempts}, err
	}

	report, err := o.commit(ctx, p, out)
	if err != nil {
		o.logFailure(logger, err)
		return Report{Attempts: out.attempts}, err
	}
	o.remember(ctx, logger, p, out, report.Artifact)

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration(logging.FieldStageDuration, o.clock().Sub(start)),
		logging.String(logging.FieldArtifactID, report.Artifact.ID),
		logging.String("provider", report.Artifact.Provider),
		logging.Int("attempts", report.Attempts),
		logging.Bool("cache_hit", report.CacheHit),
		logging.Strings("demoted", stageNames(report.Demoted)),
	)
	return report, nil
}

// prepare validates the request in order: known stage, override keys,
// dependency freshness, required inputs.
func (o *Orchestrator) prepare(id stage.ID, overrides Overrides, runID string) (*plan, error) {
	def, ok := o.graph.Definition(id)
	if !ok {
		return nil, &RunError{Stage: id, Marker: services.ErrValidation, Message: "unknown stage"}
	}
	p := &plan{
		stage:  id,
		def:    def,
		runID:  runID,
		inputs: make(map[string]string),
		blobs:  make(map[string]blobstore.Ref),
		params: make(map[string]string),
		manual: make(map[string]string),
	}

	inputOverrides := make(map[string]string)
	for _, key := range overrides.Keys() {
		value := overrides[key]
		switch {
		case slices.Contains(def.Editable, key):
			if strings.TrimSpace(value) == "" {
				return nil, &RunError{Stage: id, Marker: services.ErrValidation, Message: fmt.Sprintf("manual %s is empty", key)}
			}
			p.manual[key] = value
		case slices.Contains(def.Params, key):
			if value = strings.TrimSpace(value); value != "" {
				p.params[key] = value
			}
		case slices.Contains(def.Inputs, key):
			if producer, has := o.graph.Producer(id, key); has && !slices.Contains(o.graph.EditableKeys(producer), key) {
				return nil, &RunError{
					Stage:   id,
					Marker:  services.ErrValidation,
					Message: fmt.Sprintf("input %s is produced by %s and cannot be overridden", key, producer),
				}
			}
			if strings.TrimSpace(value) != "" {
				inputOverrides[key] = value
			}
		default:
			return nil, &RunError{Stage: id, Marker: services.ErrValidation, Message: fmt.Sprintf("unknown override key %q", key)}
		}
	}
	if err := checkParams(p.params); err != nil {
		return nil, &RunError{Stage: id, Marker: services.ErrValidation, Message: "invalid parameter", Err: err}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if dep, state, unready := o.tracker.Unready(id); unready {
		return nil, &RunError{
			Stage:      id,
			Marker:     services.ErrDependencyNotReady,
			Dependency: dep,
			Message:    "dependency is " + state.String(),
		}
	}
	for _, dep := range def.DependsOn {
		a, _ := o.store.Get(dep)
		p.upstream = append(p.upstream, artifact.Link{Stage: dep, ID: a.ID})
	}
	if prev, ok := o.store.Get(id); ok {
		p.previous = prev
	}
	if len(p.manual) > 0 {
		return p, nil
	}

	for _, key := range def.Inputs {
		if value, ok := inputOverrides[key]; ok {
			p.inputs[key] = value
			p.overridden = append(p.overridden, key)
			continue
		}
		producer, has := o.graph.Producer(id, key)
		if !has {
			return nil, &RunError{Stage: id, Marker: services.ErrValidation, Message: "missing required input " + key}
		}
		a, _ := o.store.Get(producer)
		if !resolveInput(p, a, key) {
			return nil, &RunError{
				Stage:      id,
				Marker:     services.ErrDependencyNotReady,
				Dependency: producer,
				Message:    fmt.Sprintf("%s artifact has no %s", producer, key),
			}
		}
	}
	return p, nil
}

// resolveInput copies key's value from a dependency artifact into the plan.
func resolveInput(p *plan, a artifact.Artifact, key string) bool {
	switch key {
	case stagegraph.KeyScriptText:
		if text := strings.TrimSpace(a.Payload.Text); text != "" {
			p.inputs[key] = text
			return true
		}
	case stagegraph.KeyScene, stagegraph.KeyBeats:
		if len(a.Payload.Record) > 0 {
			p.inputs[key] = string(a.Payload.Record)
			return true
		}
	case stagegraph.KeyCharacterImage:
		if ref, ok := a.Payload.Blob("image/"); ok {
			p.blobs[key] = ref
			return true
		}
	case stagegraph.KeyMusicTrack:
		if ref, ok := a.Payload.Blob("audio/"); ok {
			p.blobs[key] = ref
			return true
		}
	default:
		if value := strings.TrimSpace(a.Payload.Meta[key]); value != "" {
			p.inputs[key] = value
			return true
		}
	}
	return false
}

// produce builds the stage's payload from a manual edit, the response cache,
// or the providers.
func (o *Orchestrator) produce(ctx context.Context, p *plan, logger *slog.Logger) (output, error) {
	if len(p.manual) > 0 {
		return o.manualOutput(p)
	}

	var fingerprint string
	if o.cache != nil {
		fp, err := respcache.Fingerprint(p.stage, p.def.Capability, p.requestKey())
		if err != nil {
			logger.Warn("response cache fingerprint failed", logging.Error(err))
		} else {
			fingerprint = fp
			if out, ok := o.lookup(ctx, logger, fp); ok {
				return out, nil
			}
		}
	}

	var (
		out output
		err error
	)
	switch p.stage {
	case stage.Script:
		out, err = o.runScript(ctx, p, logger)
	case stage.StructuredJSON:
		out, err = o.runStructure(ctx, p, logger)
	case stage.Character:
		out, err = o.runCharacter(ctx, p, logger)
	case stage.Music:
		out, err = o.runMusic(ctx, p, logger)
	case stage.Video:
		out, err = o.runVideo(ctx, p, logger)
	default:
		err = &RunError{Stage: p.stage, Marker: services.ErrConfiguration, Message: "no executor for stage"}
	}
	out.fingerprint = fingerprint
	if err == nil && len(p.overridden) > 0 {
		if out.payload.Meta == nil {
			out.payload.Meta = make(map[string]string)
		}
		out.payload.Meta["overridden_inputs"] = strings.Join(p.overridden, ",")
	}
	return out, err
}

// requestKey is the canonical description of a run used for cache lookups.
func (p *plan) requestKey() map[string]any {
	blobKeys := make(map[string]string, len(p.blobs))
	for k, ref := range p.blobs {
		blobKeys[k] = ref.Key
	}
	key := map[string]any{
		"inputs": p.inputs,
		"blobs":  blobKeys,
		"params": p.params,
	}
	if p.params[stagegraph.ParamRefine] != "" {
		key["previous"] = p.previous.Payload.Meta["prompt"]
	}
	return key
}

func (o *Orchestrator) lookup(ctx context.Context, logger *slog.Logger, fingerprint string) (output, bool) {
	entry, ok, err := o.cache.Get(ctx, fingerprint)
	if err != nil {
		logging.WarnWithContext(logger, "response cache read failed", "cache_read",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stage runs against the provider"),
		)
		return output{}, false
	}
	if !ok {
		return output{}, false
	}
	for _, ref := range entry.Payload.Blobs {
		exists, err := o.blobs.Exists(ref)
		if err != nil || !exists {
			logger.Debug("cached blob missing; ignoring cache entry", logging.String("blob", ref.Key))
			return output{}, false
		}
	}
	logger.Debug("response cache hit", logging.String("fingerprint", fingerprint))
	return output{payload: entry.Payload, provider: entry.Provider, cacheHit: true, fingerprint: fingerprint}, true
}

// remember stores a provider-produced payload in the response cache.
func (o *Orchestrator) remember(ctx context.Context, logger *slog.Logger, p *plan, out output, a artifact.Artifact) {
	if o.cache == nil || out.manual || out.cacheHit || out.fingerprint == "" {
		return
	}
	entry := respcache.Entry{
		Fingerprint: out.fingerprint,
		Stage:       p.stage,
		Provider:    a.Provider,
		Payload:     a.Payload,
		CreatedAt:   a.CreatedAt,
	}
	if err := o.cache.Put(ctx, entry); err != nil {
		logging.WarnWithContext(logger, "response cache write failed", "cache_write",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next identical run calls the provider again"),
		)
	}
}

// commit writes blobs, builds the artifact and puts it, unless the run was
// cancelled or a dependency changed while the provider was working.
func (o *Orchestrator) commit(ctx context.Context, p *plan, out output) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, &RunError{Stage: p.stage, Attempts: out.attempts, Err: err}
	}
	payload := out.payload
	for _, pb := range out.pending {
		ref, err := o.blobs.Put(pb.data, pb.mediaType)
		if err != nil {
			return Report{}, &RunError{Stage: p.stage, Attempts: out.attempts, Message: "store blob", Err: err}
		}
		payload.Blobs = append(payload.Blobs, ref)
	}
	a, err := artifact.New(p.stage, payload, p.upstream, out.provider, p.runID, o.clock())
	if err != nil {
		return Report{}, &RunError{Stage: p.stage, Marker: services.ErrValidation, Attempts: out.attempts, Message: "build artifact", Err: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Report{}, &RunError{Stage: p.stage, Attempts: out.attempts, Err: err}
	}
	for _, link := range p.upstream {
		current, ok := o.store.Get(link.Stage)
		if !ok || current.ID != link.ID {
			return Report{}, &RunError{
				Stage:      p.stage,
				Marker:     services.ErrDependencyNotReady,
				Dependency: link.Stage,
				Attempts:   out.attempts,
				Message:    "dependency changed during the run",
			}
		}
	}
	if err := o.store.Put(a); err != nil {
		return Report{}, &RunError{Stage: p.stage, Attempts: out.attempts, Message: "commit artifact", Err: err}
	}

	return Report{
		Artifact: a,
		Demoted:  o.refreshDownstreamLocked(p.stage),
		Attempts: out.attempts,
		CacheHit: out.cacheHit,
		Manual:   out.manual,
	}, nil
}

// refreshDownstreamLocked recomputes the demotion flag of every occupied
// downstream slot, in topological order, and returns the newly demoted ones.
func (o *Orchestrator) refreshDownstreamLocked(id stage.ID) []stage.ID {
	var demoted []stage.ID
	for _, down := range o.graph.Downstream(id) {
		if _, ok := o.store.Get(down); !ok {
			continue
		}
		stale := !o.tracker.ComputedFresh(down)
		if o.store.MarkStale(down, stale) && stale {
			demoted = append(demoted, down)
		}
	}
	return demoted
}

func (o *Orchestrator) logFailure(logger *slog.Logger, err error) {
	attrs := []logging.Attr{
		logging.String("error_kind", services.MarkerName(err)),
		logging.String(logging.FieldErrorHint, Hint(err)),
		logging.Alert("stage_failure"),
		logging.Error(err),
	}
	if runErr, ok := err.(*RunError); ok {
		if runErr.Dependency != "" {
			attrs = append(attrs, logging.String("dependency", string(runErr.Dependency)))
		}
		if runErr.Attempts > 0 {
			attrs = append(attrs, logging.Int("attempts", runErr.Attempts))
		}
		if runErr.Provider != "" {
			attrs = append(attrs, logging.String("provider", runErr.Provider), logging.String("provider_kind", runErr.Kind.String()))
		}
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
}

func stageNames(ids []stage.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
