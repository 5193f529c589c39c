package tracker

import (
	"encoding/json"
	"errors"
	"reflect"
)

// Package tracker computes the UPDATE payload for audit records by diffing
// old vs. new entity snapshots.
//
// The diff is shallow: only top-level keys are compared. Nested containers
// compare as whole values; there is no per-field descent into them.

var ErrInvalidSnapshot = errors.New("tracker: snapshot must be a non-nil map")

// Absent marks a field that had no value in the old snapshot.
// It marshals as the string "__absent__" to stay distinguishable from an
// explicit null.
var Absent = absentMarker{}

type absentMarker struct{}

func (absentMarker) MarshalJSON() ([]byte, error) { return []byte(`"__absent__"`), nil }

func (absentMarker) String() string { return "__absent__" }

// Change records one field transition.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Changes maps changed field names to their transitions. It marshals
// directly into the audit UPDATE payload schema.
type Changes map[string]Change

func (c Changes) Empty() bool { return len(c) == 0 }

// Payload serializes the change set for an audit record.
func (c Changes) Payload() (json.RawMessage, error) {
	return json.Marshal(c)
}

// Diff returns the keys present in newState whose value differs from
// oldState's corresponding value. Keys absent from oldState are reported
// with From set to Absent. Unchanged keys are excluded; keys removed from
// newState are not reported.
//
// A nil oldState is treated as empty (everything is new). A nil newState
// fails fast: there is no meaningful diff target.
func Diff(oldState, newState map[string]any) (Changes, error) {
	if newState == nil {
		return nil, ErrInvalidSnapshot
	}

	out := Changes{}
	for key, newVal := range newState {
		oldVal, ok := oldState[key]
		if !ok {
			out[key] = Change{From: Absent, To: newVal}
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			out[key] = Change{From: oldVal, To: newVal}
		}
	}
	return out, nil
}
