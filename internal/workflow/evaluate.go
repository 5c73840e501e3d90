package workflow

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/hyperengineering/rentops/internal/types"
)

// Snapshot is everything the evaluator reads about one property.
type Snapshot struct {
	Fields types.Fields
	// Checklists maps section key to checked items.
	Checklists map[string]map[string]bool
	Inspection *types.InspectionReport
}

// SectionStatus is the derived completion of one section.
type SectionStatus struct {
	Key      string      `json:"key"`
	Title    string      `json:"title"`
	Kind     SectionKind `json:"kind"`
	Optional bool        `json:"optional,omitempty"`
	Complete bool        `json:"complete"`
	// Missing lists the field, item or room keys that block completion.
	Missing []string `json:"missing"`
}

// PhaseProgress is the derived completion of one phase.
type PhaseProgress struct {
	Phase    types.Phase     `json:"phase"`
	Title    string          `json:"title"`
	Sections []SectionStatus `json:"sections"`
	Complete bool            `json:"complete"`
	Percent  int             `json:"percent"`
}

// Incomplete returns the keys of required sections that are not complete.
func (p PhaseProgress) Incomplete() []string {
	var out []string
	for _, s := range p.Sections {
		if !s.Optional && !s.Complete {
			out = append(out, s.Key)
		}
	}
	return out
}

// EvaluateSection computes whether a section is complete.
func EvaluateSection(s Section, snap Snapshot) SectionStatus {
	st := SectionStatus{Key: s.Key, Title: s.Title, Kind: s.Kind, Optional: s.Optional, Missing: []string{}}

	switch s.Kind {
	case KindForm:
		for _, f := range s.Fields {
			if !f.RequiredFor(snap.Fields) {
				continue
			}
			v, ok := snap.Fields[f.Key]
			if !ok || !Present(f, v) {
				st.Missing = append(st.Missing, f.Key)
			}
		}
	case KindChecklist:
		checked := snap.Checklists[s.Key]
		for _, it := range s.Items {
			if !checked[it.Key] {
				st.Missing = append(st.Missing, it.Key)
			}
		}
	case KindInspection:
		st.Missing = append(st.Missing, InspectionMissing(snap.Inspection)...)
	}

	st.Complete = len(st.Missing) == 0
	return st
}

// EvaluatePhase computes section statuses and progress for one phase.
func EvaluatePhase(p PhaseDef, snap Snapshot) PhaseProgress {
	pp := PhaseProgress{Phase: p.Key, Title: p.Title, Sections: make([]SectionStatus, 0, len(p.Sections))}

	var required, done int
	for _, s := range p.Sections {
		st := EvaluateSection(s, snap)
		pp.Sections = append(pp.Sections, st)
		if s.Optional {
			continue
		}
		required++
		if st.Complete {
			done++
		}
	}

	pp.Complete = done == required
	pp.Percent = Percent(done, required)
	return pp
}

// EvaluateAll evaluates every phase in kanban order.
func EvaluateAll(snap Snapshot) []PhaseProgress {
	out := make([]PhaseProgress, 0, len(registry))
	for _, p := range registry {
		out = append(out, EvaluatePhase(p, snap))
	}
	return out
}

// Percent returns round(100*done/required), or 100 when nothing is required.
func Percent(done, required int) int {
	if required == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(required)))
}

// RequiredFor reports whether f must be present given the other values.
func (f Field) RequiredFor(fields types.Fields) bool {
	if f.RequiredIf == nil {
		return f.Required
	}
	v, ok := fields[f.RequiredIf.Field]
	return ok && reflect.DeepEqual(v, f.RequiredIf.Equals)
}

// Present reports whether v counts as filled in for f. Toggles only count
// when switched on.
func Present(f Field, v any) bool {
	if v == nil {
		return false
	}
	switch f.Kind {
	case FieldBool:
		b, ok := v.(bool)
		return ok && b
	case FieldNumber, FieldInteger:
		_, ok := toFloat(v)
		return ok
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(DateLayout, s)
		return err == nil
	default:
		s, ok := v.(string)
		return ok && strings.TrimSpace(s) != ""
	}
}

// RoomComplete reports whether a room satisfies the inspection rule: a status
// is set and, for incidents, a comment and at least one photo are attached.
func RoomComplete(r types.InspectionRoom) bool {
	switch r.Status {
	case types.RoomGood, types.RoomNotApplicable:
		return true
	case types.RoomIncident:
		return strings.TrimSpace(r.Comment) != "" && len(r.Photos) > 0
	default:
		return false
	}
}

// InspectionMissing returns the keys of incomplete rooms, or "rooms" when the
// report has none.
func InspectionMissing(report *types.InspectionReport) []string {
	if report == nil || len(report.Rooms) == 0 {
		return []string{"rooms"}
	}
	var missing []string
	for _, r := range report.Rooms {
		if !RoomComplete(r) {
			missing = append(missing, r.Key)
		}
	}
	return missing
}

// InspectionComplete reports whether every room of a non-empty report is complete.
func InspectionComplete(report *types.InspectionReport) bool {
	return len(InspectionMissing(report)) == 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
