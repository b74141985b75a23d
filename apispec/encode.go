package apispec

import (
	"encoding/json"

	"github.com/wasmbind/wasmbind/errors"
)

// MarshalJSON encodes the tag in its wire form.
func (t Tag) MarshalJSON() ([]byte, error) {
	s := t.String()
	if s == "?" {
		return nil, errors.New(errors.PhaseGenerate, errors.KindUnknownTag).
			Value(uint8(t)).
			Detail("tag value has no wire form").
			Build()
	}
	return json.Marshal(s)
}

// MarshalJSON encodes only the active length strategy.
func (l *Length) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LengthProc:
		return json.Marshal(struct {
			Proc string   `json:"proc"`
			Args []string `json:"args,omitempty"`
		}{Proc: l.Proc, Args: l.ProcArgs})
	case LengthCount:
		return json.Marshal(struct {
			Count string `json:"count"`
		}{Count: l.CountArg})
	case LengthComponents:
		return json.Marshal(struct {
			Components uint32 `json:"components"`
		}{Components: l.Components})
	}
	return nil, errors.InvalidArgLength(nil, "length has no active strategy")
}

// MarshalJSON encodes the spec as a top-level array of binding entries,
// the same shape Parse accepts.
func (s *Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Bindings)
}

// EncodeIndent renders the spec as indented JSON, mainly for tooling output.
func (s *Spec) EncodeIndent() ([]byte, error) {
	return json.MarshalIndent(s.Bindings, "", "    ")
}
