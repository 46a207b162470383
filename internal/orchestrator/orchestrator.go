package orchestrator

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/provider"
	"scenecraft/internal/respcache"
	"scenecraft/internal/retry"
	"scenecraft/internal/scene"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
	"scenecraft/internal/staleness"
)

const (
	defaultImageSize = "1024x1024"
	defaultVideoMode = "local"
	// ManualProvider is the provenance name of hand-edited artifacts.
	ManualProvider = "manual"
)

// Providers holds one collaborator per capability. A nil entry means the
// capability is not configured; running a stage that needs it fails with
// services.ErrConfiguration.
type Providers struct {
	Chat       provider.ChatProvider
	Structured provider.StructuredProvider
	Image      provider.ImageProvider
	Audio      provider.AudioProvider
	// Video maps an assembly mode ("sora", "local") to its collaborator.
	Video map[string]provider.VideoProvider
}

// VideoSettings are the video stage defaults used when no override is given.
type VideoSettings struct {
	Mode           string
	SecondsPerBeat float64
	Width          int
	Height         int
	FPS            int
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	SessionID     string
	Graph         *stagegraph.Graph
	Store         *artifact.Store
	Blobs         *blobstore.Store
	Providers     Providers
	Cache         respcache.Cache
	Retry         retry.Policy
	ImageSize     string
	MusicLengthMS int
	Video         VideoSettings
	Logger        *slog.Logger
	Clock         func() time.Time
	NewID         func() string
}

// Overrides are user-supplied values keyed by input, editable output or
// parameter name.
type Overrides map[string]string

// Keys returns the override keys in sorted order.
func (o Overrides) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Report describes a committed run.
type Report struct {
	Artifact artifact.Artifact
	// Demoted lists downstream stages that became stale with this commit.
	Demoted  []stage.ID
	Attempts int
	CacheHit bool
	Manual   bool
}

// StageState is a slot's classification plus its current artifact, which is
// kept for display even when stale.
type StageState struct {
	Stage    stage.ID          `json:"stage"`
	State    staleness.State   `json:"state"`
	Artifact artifact.Artifact `json:"artifact"`
}

// Present reports whether the slot holds an artifact.
func (s StageState) Present() bool { return s.State != staleness.Absent }

// Orchestrator runs stages against one session's store.
type Orchestrator struct {
	mu      sync.RWMutex
	running atomic.Bool

	sessionID     string
	graph         *stagegraph.Graph
	store         *artifact.Store
	tracker       *staleness.Tracker
	blobs         *blobstore.Store
	providers     Providers
	cache         respcache.Cache
	policy        retry.Policy
	imageSize     string
	musicLengthMS int
	video         VideoSettings
	logger        *slog.Logger
	clock         func() time.Time
	newID         func() string
}

// New builds an orchestrator. A nil graph uses stagegraph.Default; a nil store
// or blob store starts empty in memory.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		sessionID:     opts.SessionID,
		graph:         opts.Graph,
		store:         opts.Store,
		blobs:         opts.Blobs,
		providers:     opts.Providers,
		cache:         opts.Cache,
		policy:        opts.Retry,
		imageSize:     opts.ImageSize,
		musicLengthMS: opts.MusicLengthMS,
		video:         opts.Video,
		logger:        logging.NewComponentLogger(opts.Logger, "orchestrator"),
		clock:         opts.Clock,
		newID:         opts.NewID,
	}
	if o.graph == nil {
		o.graph = stagegraph.Default()
	}
	if o.store == nil {
		o.store = artifact.NewStore()
	}
	if o.blobs == nil {
		o.blobs = blobstore.NewMemory()
	}
	if o.policy.MaxAttempts <= 0 {
		sleep := o.policy.Sleep
		o.policy = retry.Default()
		o.policy.Sleep = sleep
	}
	if o.imageSize == "" {
		o.imageSize = defaultImageSize
	}
	if o.musicLengthMS <= 0 {
		o.musicLengthMS = scene.DefaultMusicSeconds * 1000
	}
	if o.video.Mode == "" {
		o.video.Mode = defaultVideoMode
	}
	if o.video.SecondsPerBeat <= 0 {
		o.video.SecondsPerBeat = scene.DefaultSecondsPerBeat
	}
	if o.video.Width <= 0 || o.video.Height <= 0 {
		o.video.Width, o.video.Height = 1280, 720
	}
	if o.video.FPS <= 0 {
		o.video.FPS = 24
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	o.tracker = staleness.New(o.graph, o.store)
	return o
}

// Graph returns the stage graph the orchestrator validates against.
func (o *Orchestrator) Graph() *stagegraph.Graph { return o.graph }

// Blobs returns the blob store media artifacts reference.
func (o *Orchestrator) Blobs() *blobstore.Store { return o.blobs }

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// State classifies one stage.
func (o *Orchestrator) State(id stage.ID) (StageState, error) {
	if !o.graph.Has(id) {
		return StageState{}, services.Wrap(services.ErrValidation, string(id), "state", "unknown stage", nil)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stateLocked(id), nil
}

// States classifies every stage in pipeline order.
func (o *Orchestrator) States() []StageState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order := o.graph.Order()
	out := make([]StageState, 0, len(order))
	for _, id := range order {
		out = append(out, o.stateLocked(id))
	}
	return out
}

func (o *Orchestrator) stateLocked(id stage.ID) StageState {
	st := StageState{Stage: id, State: o.tracker.Classify(id)}
	if a, ok := o.store.Get(id); ok {
		st.Artifact = a
	}
	return st
}

// History returns superseded artifacts of a stage, oldest first.
func (o *Orchestrator) History(id stage.ID) []artifact.Artifact {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.store.History(id)
}

// Snapshot copies the store.
func (o *Orchestrator) Snapshot() artifact.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.store.Snapshot()
}

// Capture classifies every stage and copies the store under one read lock, so
// both describe the same commit.
func (o *Orchestrator) Capture() ([]StageState, artifact.Snapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order := o.graph.Order()
	states := make([]StageState, 0, len(order))
	for _, id := range order {
		states = append(states, o.stateLocked(id))
	}
	return states, o.store.Snapshot()
}

// Reset clears every slot. It fails with services.ErrRunInProgress while a run
// is in flight.
func (o *Orchestrator) Reset() error {
	return o.Exclusive("reset", func() error {
		o.store.Reset()
		return nil
	})
}

// Restore replaces the store's contents with snap. It fails with
// services.ErrRunInProgress while a run is in flight.
func (o *Orchestrator) Restore(snap artifact.Snapshot) error {
	return o.Exclusive("restore", func() error {
		if err := o.store.Restore(snap); err != nil {
			return services.Wrap(services.ErrValidation, "", "restore", "invalid snapshot", err)
		}
		return nil
	})
}

// Exclusive runs fn with the run guard held so no stage can start meanwhile.
// It fails with services.ErrRunInProgress while a run is in flight.
func (o *Orchestrator) Exclusive(op string, fn func() error) error {
	if !o.running.CompareAndSwap(false, true) {
		return services.Wrap(services.ErrRunInProgress, "", op, "a stage run is in flight", nil)
	}
	defer o.running.Store(false)
	o.mu.Lock()
	defer o.mu.Unlock()
	return fn()
}
