// Package workflow holds the declarative description of every rental phase and
// the evaluator that derives section completion, phase completion and progress
// from raw property values.
package workflow

import (
	"fmt"

	"github.com/hyperengineering/rentops/internal/types"
)

// SectionKind selects how a section's completion is computed.
type SectionKind string

const (
	// KindForm sections are complete when every required field is present.
	KindForm SectionKind = "form"
	// KindChecklist sections are complete when every item is checked.
	KindChecklist SectionKind = "checklist"
	// KindInspection sections are complete when the inspection report is.
	KindInspection SectionKind = "inspection"
)

// FieldKind is the value type of a form field.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldNumber   FieldKind = "number"
	FieldInteger  FieldKind = "integer"
	FieldBool     FieldKind = "bool"
	FieldDate     FieldKind = "date"
	FieldEnum     FieldKind = "enum"
	FieldEmail    FieldKind = "email"
	FieldPhone    FieldKind = "phone"
	FieldURL      FieldKind = "url"
	FieldDocument FieldKind = "document"
)

// DateLayout is the wire format of date fields.
const DateLayout = "2006-01-02"

// Condition makes a field required only when another field holds a value.
type Condition struct {
	Field  string `json:"field"`
	Equals any    `json:"equals"`
}

// Field is one input of a form section.
type Field struct {
	Key        string     `json:"key"`
	Label      string     `json:"label"`
	Kind       FieldKind  `json:"kind"`
	Required   bool       `json:"required"`
	RequiredIf *Condition `json:"required_if,omitempty"`
	Options    []string   `json:"options,omitempty"`
	// Rule is a validator tag applied to written values, e.g. "gte=0".
	Rule string `json:"rule,omitempty"`
}

// ChecklistItem is one toggle of a checklist section.
type ChecklistItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Section is a unit of work inside a phase. Its key doubles as the task_type
// of the persisted PropertyTask row and is unique across all phases.
type Section struct {
	Key      string          `json:"key"`
	Title    string          `json:"title"`
	Kind     SectionKind     `json:"kind"`
	Optional bool            `json:"optional,omitempty"`
	Fields   []Field         `json:"fields,omitempty"`
	Items    []ChecklistItem `json:"items,omitempty"`
}

// Item returns the checklist item with the given key.
func (s Section) Item(key string) (ChecklistItem, bool) {
	for _, it := range s.Items {
		if it.Key == key {
			return it, true
		}
	}
	return ChecklistItem{}, false
}

// PhaseDef describes one kanban column.
type PhaseDef struct {
	Key      types.Phase `json:"key"`
	Title    string      `json:"title"`
	Sections []Section   `json:"sections"`
}

// Section returns the section with the given key.
func (p PhaseDef) Section(key string) (Section, bool) {
	for _, s := range p.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// FieldRef locates a field inside the registry.
type FieldRef struct {
	Field   Field
	Phase   types.Phase
	Section string
}

var (
	phaseIndex = map[types.Phase]int{}
	fieldIndex = map[string]FieldRef{}
)

func init() {
	sections := map[string]bool{}
	for i, p := range registry {
		phaseIndex[p.Key] = i
		for _, s := range p.Sections {
			if sections[s.Key] {
				panic(fmt.Sprintf("workflow: duplicate section key %q", s.Key))
			}
			sections[s.Key] = true
			for _, f := range s.Fields {
				if _, dup := fieldIndex[f.Key]; dup {
					panic(fmt.Sprintf("workflow: duplicate field key %q", f.Key))
				}
				fieldIndex[f.Key] = FieldRef{Field: f, Phase: p.Key, Section: s.Key}
			}
		}
	}
}

// Phases returns every phase in kanban order.
func Phases() []PhaseDef {
	out := make([]PhaseDef, len(registry))
	copy(out, registry)
	return out
}

// PhaseByKey returns the phase definition for key.
func PhaseByKey(key types.Phase) (PhaseDef, bool) {
	i, ok := phaseIndex[key]
	if !ok {
		return PhaseDef{}, false
	}
	return registry[i], true
}

// Index returns the kanban position of key, or -1 if unknown.
func Index(key types.Phase) int {
	i, ok := phaseIndex[key]
	if !ok {
		return -1
	}
	return i
}

// Next returns the phase after key. ok is false for the last phase.
func Next(key types.Phase) (types.Phase, bool) {
	i := Index(key)
	if i < 0 || i+1 >= len(registry) {
		return "", false
	}
	return registry[i+1].Key, true
}

// PhaseKeys returns the phase keys as strings, for enum validation.
func PhaseKeys() []string {
	keys := make([]string, len(registry))
	for i, p := range registry {
		keys[i] = string(p.Key)
	}
	return keys
}

// FieldByKey finds a field anywhere in the registry.
func FieldByKey(key string) (FieldRef, bool) {
	ref, ok := fieldIndex[key]
	return ref, ok
}

// SectionByKey finds a section of the given phase.
func SectionByKey(phase types.Phase, key string) (Section, bool) {
	p, ok := PhaseByKey(phase)
	if !ok {
		return Section{}, false
	}
	return p.Section(key)
}
