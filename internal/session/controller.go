package session

import (
	"context"
	"time"

	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/staleness"
)

// StageState is one stage's classification and current artifact.
type StageState = orchestrator.StageState

// Controller is the presentation-facing handle for one session.
type Controller struct {
	id        string
	createdAt time.Time
	orch      *orchestrator.Orchestrator
}

// NewController wraps an orchestrator built for session id.
func NewController(id string, orch *orchestrator.Orchestrator, createdAt time.Time) *Controller {
	return &Controller{id: id, createdAt: createdAt.UTC(), orch: orch}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// CreatedAt returns when the session was created.
func (c *Controller) CreatedAt() time.Time { return c.createdAt }

// Blobs returns the blob store the session's media artifacts live in.
func (c *Controller) Blobs() *blobstore.Store { return c.orch.Blobs() }

// Running reports whether a stage run is in flight.
func (c *Controller) Running() bool { return c.orch.Running() }

// StateOf classifies one stage. A stale artifact is still returned for
// display.
func (c *Controller) StateOf(id stage.ID) (StageState, error) {
	return c.orch.State(id)
}

// States classifies every stage in pipeline order.
func (c *Controller) States() []StageState {
	return c.orch.States()
}

// History returns superseded artifacts of a stage, oldest first.
func (c *Controller) History(id stage.ID) []artifact.Artifact {
	return c.orch.History(id)
}

// RequestRun runs one stage with optional overrides.
func (c *Controller) RequestRun(ctx context.Context, id stage.ID, overrides orchestrator.Overrides) (orchestrator.Report, error) {
	return c.orch.Run(ctx, id, overrides)
}

// Final is an exportable video together with the stage states and store copy
// it was read from.
type Final struct {
	Video    artifact.Artifact
	States   []StageState
	Snapshot artifact.Snapshot
}

// ExportFinal returns the video artifact when it is fresh. Otherwise it fails
// with services.ErrPipelineIncomplete naming the first stage that is not.
func (c *Controller) ExportFinal() (artifact.Artifact, error) {
	final, err := c.FinalExport()
	return final.Video, err
}

// FinalExport is ExportFinal plus the states and snapshot of the same commit,
// so an exporter never mixes artifacts from before and after a later run.
func (c *Controller) FinalExport() (Final, error) {
	states, snap := c.orch.Capture()
	for _, st := range states {
		if st.State != staleness.Fresh {
			return Final{}, services.Wrap(
				services.ErrPipelineIncomplete,
				string(stage.Video),
				"export",
				string(st.Stage)+" is "+st.State.String(),
				nil,
			)
		}
	}
	for _, st := range states {
		if st.Stage == stage.Video {
			return Final{Video: st.Artifact, States: states, Snapshot: snap}, nil
		}
	}
	return Final{}, services.Wrap(services.ErrPipelineIncomplete, string(stage.Video), "export", "no video stage", nil)
}

// Reset clears every artifact of the session.
func (c *Controller) Reset() error { return c.orch.Reset() }

// Snapshot copies the session's artifacts.
func (c *Controller) Snapshot() artifact.Snapshot { return c.orch.Snapshot() }

// Restore replaces the session's artifacts with snap.
func (c *Controller) Restore(snap artifact.Snapshot) error { return c.orch.Restore(snap) }
