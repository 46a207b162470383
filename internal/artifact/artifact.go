package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"scenecraft/internal/blobstore"
	"scenecraft/internal/stage"
)

// Payload is the content a stage run produced. Exactly which fields are set
// depends on the stage: script sets Text, structured_json sets Record, media
// stages set Blobs.
type Payload struct {
	Text   string            `json:"text,omitempty"`
	Record json.RawMessage   `json:"record,omitempty"`
	Blobs  []blobstore.Ref   `json:"blobs,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Blob returns the first blob with the given media type prefix (e.g. "image/").
func (p Payload) Blob(prefix string) (blobstore.Ref, bool) {
	for _, ref := range p.Blobs {
		if strings.HasPrefix(ref.MediaType, prefix) {
			return ref, true
		}
	}
	return blobstore.Ref{}, false
}

// Link records one upstream artifact an artifact was produced from.
type Link struct {
	Stage stage.ID `json:"stage"`
	ID    string   `json:"id"`
}

// Artifact is the immutable result of one successful stage run.
type Artifact struct {
	ID        string    `json:"id"`
	Stage     stage.ID  `json:"stage"`
	Payload   Payload   `json:"payload"`
	Upstream  []Link    `json:"upstream,omitempty"`
	Provider  string    `json:"provider"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether a is the empty value.
func (a Artifact) IsZero() bool { return a.ID == "" }

// UpstreamID returns the recorded upstream id for dep.
func (a Artifact) UpstreamID(dep stage.ID) (string, bool) {
	for _, link := range a.Upstream {
		if link.Stage == dep {
			return link.ID, true
		}
	}
	return "", false
}

// ContentID hashes the stage and payload. Provenance, provider, run id and
// timestamps are not part of the id, so identical output from a re-run keeps
// the same id.
func ContentID(id stage.ID, payload Payload) (string, error) {
	canonical, err := canonicalPayload(payload)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(struct {
		Stage   stage.ID `json:"stage"`
		Payload Payload  `json:"payload"`
	}{Stage: id, Payload: canonical})
	if err != nil {
		return "", fmt.Errorf("artifact: encode payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalPayload re-encodes the record so key order and whitespace do not
// affect the content id.
func canonicalPayload(payload Payload) (Payload, error) {
	out := Payload{Text: payload.Text, Meta: payload.Meta}
	if len(payload.Meta) == 0 {
		out.Meta = nil
	}
	if len(payload.Blobs) > 0 {
		out.Blobs = slices.Clone(payload.Blobs)
	}
	if len(bytes.TrimSpace(payload.Record)) > 0 {
		var decoded any
		if err := json.Unmarshal(payload.Record, &decoded); err != nil {
			return Payload{}, fmt.Errorf("artifact: record is not valid json: %w", err)
		}
		encoded, err := json.Marshal(decoded)
		if err != nil {
			return Payload{}, fmt.Errorf("artifact: encode record: %w", err)
		}
		out.Record = encoded
	}
	return out, nil
}

// New builds an artifact and assigns its content id.
func New(id stage.ID, payload Payload, upstream []Link, providerName, runID string, now time.Time) (Artifact, error) {
	if !id.Valid() {
		return Artifact{}, fmt.Errorf("artifact: unknown stage %q", id)
	}
	contentID, err := ContentID(id, payload)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		ID:        contentID,
		Stage:     id,
		Payload:   clonePayload(payload),
		Upstream:  slices.Clone(upstream),
		Provider:  providerName,
		RunID:     runID,
		CreatedAt: now.UTC(),
	}, nil
}

// Verify recomputes the content id and reports a mismatch.
func (a Artifact) Verify() error {
	want, err := ContentID(a.Stage, a.Payload)
	if err != nil {
		return err
	}
	if want != a.ID {
		return fmt.Errorf("artifact: %s id %s does not match content (%s)", a.Stage, a.ID, want)
	}
	return nil
}

func clonePayload(p Payload) Payload {
	out := Payload{Text: p.Text}
	if p.Record != nil {
		out.Record = slices.Clone(p.Record)
	}
	if p.Blobs != nil {
		out.Blobs = slices.Clone(p.Blobs)
	}
	if p.Meta != nil {
		out.Meta = maps.Clone(p.Meta)
	}
	return out
}

func clone(a Artifact) Artifact {
	a.Payload = clonePayload(a.Payload)
	a.Upstream = slices.Clone(a.Upstream)
	return a
}
