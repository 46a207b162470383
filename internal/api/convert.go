package api

import (
	"net/url"
	"time"

	"scenecraft/internal/artifact"
	"scenecraft/internal/deps"
	"scenecraft/internal/export"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/services"
	"scenecraft/internal/session"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

// BlobURL is the path a blob key is served under.
func BlobURL(key string) string {
	return "/api/blobs/" + url.PathEscape(key)
}

// FromArtifact converts an artifact to its API representation. The zero
// artifact converts to nil.
func FromArtifact(a artifact.Artifact) *ArtifactView {
	if a.IsZero() {
		return nil
	}
	view := &ArtifactView{
		ID:        a.ID,
		Stage:     string(a.Stage),
		Provider:  a.Provider,
		RunID:     a.RunID,
		CreatedAt: formatTime(a.CreatedAt),
		Text:      a.Payload.Text,
		Record:    a.Payload.Record,
		Meta:      a.Payload.Meta,
	}
	for _, ref := range a.Payload.Blobs {
		view.Blobs = append(view.Blobs, BlobView{
			Key:       ref.Key,
			MediaType: ref.MediaType,
			Size:      ref.Size,
			URL:       BlobURL(ref.Key),
		})
	}
	if len(a.Upstream) > 0 {
		view.Upstream = make(map[string]string, len(a.Upstream))
		for _, link := range a.Upstream {
			view.Upstream[string(link.Stage)] = link.ID
		}
	}
	return view
}

// FromStageState converts a classified slot. history is the number of
// superseded artifacts kept for the stage.
func FromStageState(st orchestrator.StageState, history int) StageView {
	return StageView{
		Stage:    string(st.Stage),
		Title:    st.Stage.Title(),
		State:    st.State.String(),
		Artifact: FromArtifact(st.Artifact),
		History:  history,
	}
}

// FromSession converts a session to its list form.
func FromSession(ctrl *session.Controller) SessionSummary {
	if ctrl == nil {
		return SessionSummary{}
	}
	states := ctrl.States()
	summary := SessionSummary{
		ID:        ctrl.ID(),
		CreatedAt: formatTime(ctrl.CreatedAt()),
		Running:   ctrl.Running(),
		States:    make(map[string]string, len(states)),
	}
	for _, st := range states {
		summary.States[string(st.Stage)] = st.State.String()
	}
	return summary
}

// FromSessions converts sessions in the order given.
func FromSessions(ctrls []*session.Controller) []SessionSummary {
	out := make([]SessionSummary, 0, len(ctrls))
	for _, ctrl := range ctrls {
		out = append(out, FromSession(ctrl))
	}
	return out
}

// FromSessionDetail converts a session with every stage slot.
func FromSessionDetail(ctrl *session.Controller) SessionDetail {
	if ctrl == nil {
		return SessionDetail{}
	}
	detail := SessionDetail{
		ID:        ctrl.ID(),
		CreatedAt: formatTime(ctrl.CreatedAt()),
		Running:   ctrl.Running(),
	}
	for _, st := range ctrl.States() {
		detail.Stages = append(detail.Stages, FromStageState(st, len(ctrl.History(st.Stage))))
	}
	return detail
}

// FromReport converts a committed run. st is the stage's state after the
// commit.
func FromReport(report orchestrator.Report, st orchestrator.StageState, history int) RunResponse {
	resp := RunResponse{
		Stage:    FromStageState(st, history),
		Attempts: report.Attempts,
		CacheHit: report.CacheHit,
		Manual:   report.Manual,
	}
	for _, id := range report.Demoted {
		resp.Demoted = append(resp.Demoted, string(id))
	}
	return resp
}

// FromExportResult converts an export result.
func FromExportResult(res export.Result) ExportResponse {
	return ExportResponse{
		Dir:         res.Dir,
		VideoPath:   res.VideoPath,
		EncodedPath: res.EncodedPath,
		ArchiveID:   res.ArchiveID,
		Files:       res.Files,
	}
}

// FromDefinitions converts the graph's stages with their readiness.
func FromDefinitions(graph *stagegraph.Graph, health []stage.Health) []StageDefinition {
	if graph == nil {
		return nil
	}
	byName := make(map[string]stage.Health, len(health))
	for _, h := range health {
		byName[h.Name] = h
	}
	order := graph.Order()
	out := make([]StageDefinition, 0, len(order))
	for _, id := range order {
		def, _ := graph.Definition(id)
		dto := StageDefinition{
			Stage:      string(id),
			Title:      id.Title(),
			Inputs:     def.Inputs,
			Outputs:    def.Outputs,
			Editable:   def.Editable,
			Params:     def.Params,
			Capability: string(def.Capability),
		}
		for _, dep := range def.DependsOn {
			dto.DependsOn = append(dto.DependsOn, string(dep))
		}
		if h, ok := byName[id.Title()]; ok {
			dto.Ready = h.Ready
			dto.Detail = h.Detail
		}
		out = append(out, dto)
	}
	return out
}

// FromDependencies converts binary checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FromError builds the error body for err.
func FromError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{}
	}
	return ErrorResponse{
		Error: err.Error(),
		Kind:  services.MarkerName(err),
		Hint:  orchestrator.Hint(err),
	}
}

// FromLogEvents converts hub events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			SessionID:     evt.SessionID,
			Stage:         evt.Stage,
			RunID:         evt.RunID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
