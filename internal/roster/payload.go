// Package roster provides the persisted candidate roster for intervue.
package roster

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/intervue/pkg/models"
)

// SchemaVersion is the version written by this build.
const SchemaVersion = 2

var (
	// ErrCorruptPayload marks a stored payload that cannot be decoded.
	ErrCorruptPayload = errors.New("corrupt roster payload")
	// ErrUnsupportedVersion marks a payload version with no migration path.
	ErrUnsupportedVersion = errors.New("unsupported roster schema version")
)

// Snapshot is the persisted roster layout.
type Snapshot struct {
	CurrentCandidateID *string                    `json:"currentCandidateId"`
	Candidates         []*models.CandidateSession `json:"candidates"`
	Version            int                        `json:"version"`
}

// MigrationFunc upgrades a raw payload from one version to the next.
type MigrationFunc func(raw map[string]json.RawMessage) (map[string]json.RawMessage, error)

// migrations maps a source version to the step that produces version+1.
var migrations = map[int]MigrationFunc{
	1: migrateV1,
}

// Encode serializes the snapshot at the current schema version.
func Encode(snap Snapshot) ([]byte, error) {
	snap.Version = SchemaVersion
	if snap.Candidates == nil {
		snap.Candidates = []*models.CandidateSession{}
	}
	return json.Marshal(snap)
}

// Decode parses a stored payload, running migrations when the version is
// older than SchemaVersion. An empty payload decodes to an empty snapshot.
func Decode(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{Version: SchemaVersion, Candidates: []*models.CandidateSession{}}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Snapshot{}, fmt.Errorf("%w: not a JSON object", ErrCorruptPayload)
	}

	version, err := payloadVersion(raw)
	if err != nil {
		return Snapshot{}, err
	}
	if version > SchemaVersion || version < 1 {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	for version < SchemaVersion {
		step, ok := migrations[version]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: no migration from %d", ErrUnsupportedVersion, version)
		}
		raw, err = step(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("migrate from version %d: %w", version, err)
		}
		version++
	}

	migrated, err := json.Marshal(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(migrated, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	snap.Version = SchemaVersion

	if err := validateSnapshot(&snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// payloadVersion reads "version", falling back to the redux-persist
// "_persist.version" marker. Payloads without either are version 1.
func payloadVersion(raw map[string]json.RawMessage) (int, error) {
	if v, ok := raw["version"]; ok {
		var version int
		if err := json.Unmarshal(v, &version); err != nil {
			return 0, fmt.Errorf("%w: bad version field", ErrCorruptPayload)
		}
		return version, nil
	}
	if p, ok := raw["_persist"]; ok {
		var meta struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(unwrapString(p), &meta); err == nil && meta.Version > 0 {
			return 1, nil
		}
	}
	if _, ok := raw["candidates"]; ok {
		return 1, nil
	}
	return 0, fmt.Errorf("%w: no version and no candidates", ErrCorruptPayload)
}

// validateSnapshot rejects payloads whose shape breaks roster invariants and
// drops a dangling active pointer.
func validateSnapshot(snap *Snapshot) error {
	if snap.Candidates == nil {
		snap.Candidates = []*models.CandidateSession{}
	}
	seen := make(map[string]struct{}, len(snap.Candidates))
	for i, c := range snap.Candidates {
		if c == nil || c.ID == "" {
			return fmt.Errorf("%w: candidate %d has no id", ErrCorruptPayload, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate candidate id %q", ErrCorruptPayload, c.ID)
		}
		seen[c.ID] = struct{}{}
		if !c.Status.Valid() {
			return fmt.Errorf("%w: candidate %q has status %q", ErrCorruptPayload, c.ID, c.Status)
		}
		if n := len(c.Questions); n != 0 && n != models.QuestionsPerInterview {
			return fmt.Errorf("%w: candidate %q has %d questions", ErrCorruptPayload, c.ID, n)
		}
		if c.CurrentQuestionIndex < -1 || c.CurrentQuestionIndex > len(c.Questions) {
			return fmt.Errorf("%w: candidate %q index %d out of range", ErrCorruptPayload, c.ID, c.CurrentQuestionIndex)
		}
		for _, f := range c.MissingFields {
			if !f.Valid() {
				return fmt.Errorf("%w: candidate %q missing field %q", ErrCorruptPayload, c.ID, f)
			}
		}
		c.Normalize()
	}
	if snap.CurrentCandidateID != nil {
		if _, ok := seen[*snap.CurrentCandidateID]; !ok {
			snap.CurrentCandidateID = nil
		}
	}
	return nil
}

// migrateV1 converts the original browser layout, which embedded a full copy
// of the active candidate and stored the timer start as epoch milliseconds.
func migrateV1(raw map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, 3)

	var candidates []map[string]json.RawMessage
	if c, ok := raw["candidates"]; ok && string(unwrapString(c)) != "null" {
		c = unwrapString(c)
		if err := json.Unmarshal(c, &candidates); err != nil {
			return nil, fmt.Errorf("%w: candidates is not a list", ErrCorruptPayload)
		}
	}
	for _, c := range candidates {
		if err := convertEpochTimer(c); err != nil {
			return nil, err
		}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		encoded = []byte("[]")
	}
	out["candidates"] = encoded

	out["currentCandidateId"] = json.RawMessage("null")
	if cur, ok := raw["currentCandidate"]; ok && string(unwrapString(cur)) != "null" {
		cur = unwrapString(cur)
		var current struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(cur, &current); err != nil {
			return nil, fmt.Errorf("%w: currentCandidate is not an object", ErrCorruptPayload)
		}
		if current.ID != "" {
			id, _ := json.Marshal(current.ID)
			out["currentCandidateId"] = id
		}
	}

	out["version"] = json.RawMessage("2")
	return out, nil
}

func convertEpochTimer(c map[string]json.RawMessage) error {
	v, ok := c["timerStartTime"]
	if !ok || string(v) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(v, &ms); err != nil {
		// Already a timestamp string.
		return nil
	}
	ts, err := json.Marshal(time.UnixMilli(ms).UTC())
	if err != nil {
		return err
	}
	c["timerStartTime"] = ts
	return nil
}

// unwrapString undoes redux-persist's habit of storing each top-level value
// as a JSON-encoded string.
func unwrapString(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || v[0] != '"' {
		return v
	}
	var inner string
	if err := json.Unmarshal(v, &inner); err != nil {
		return v
	}
	return json.RawMessage(inner)
}
