package workflow

import (
	"testing"

	"github.com/hyperengineering/rentops/internal/types"
)

func TestPhases_KanbanOrder(t *testing.T) {
	want := []types.Phase{
		types.PhaseProphero,
		types.PhaseReadyToRent,
		types.PhasePublished,
		types.PhaseTenantAccepted,
		types.PhasePendingProcedures,
		types.PhaseRented,
		types.PhaseIPCUpdate,
		types.PhaseRenewal,
		types.PhaseFinalization,
	}
	got := Phases()
	if len(got) != len(want) {
		t.Fatalf("len(Phases()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key != want[i] {
			t.Errorf("Phases()[%d] = %q, want %q", i, got[i].Key, want[i])
		}
		if Index(want[i]) != i {
			t.Errorf("Index(%q) = %d, want %d", want[i], Index(want[i]), i)
		}
	}
}

func TestPhases_ReturnsCopy(t *testing.T) {
	p := Phases()
	p[0].Title = "mutated"
	if Phases()[0].Title == "mutated" {
		t.Error("Phases() must not expose the registry")
	}
}

func TestNext(t *testing.T) {
	next, ok := Next(types.PhaseProphero)
	if !ok || next != types.PhaseReadyToRent {
		t.Errorf("Next(prophero) = %q, %v", next, ok)
	}
	if _, ok := Next(types.PhaseFinalization); ok {
		t.Error("Next(finalization) should report no next phase")
	}
	if _, ok := Next("sold"); ok {
		t.Error("Next(unknown) should report no next phase")
	}
	if Index("sold") != -1 {
		t.Error("Index(unknown) should be -1")
	}
}

func TestFieldByKey(t *testing.T) {
	ref, ok := FieldByKey("guarantor_document")
	if !ok {
		t.Fatal("guarantor_document not found")
	}
	if ref.Phase != types.PhaseTenantAccepted || ref.Section != "solvency" {
		t.Errorf("ref = %+v", ref)
	}
	if ref.Field.Kind != FieldDocument {
		t.Errorf("Kind = %q, want document", ref.Field.Kind)
	}
	if _, ok := FieldByKey("nope"); ok {
		t.Error("unknown field should not be found")
	}
}

func TestRegistry_Consistency(t *testing.T) {
	for _, p := range Phases() {
		if len(p.Sections) == 0 {
			t.Errorf("phase %q has no sections", p.Key)
		}
		for _, s := range p.Sections {
			switch s.Kind {
			case KindForm:
				if len(s.Fields) == 0 {
					t.Errorf("form section %q has no fields", s.Key)
				}
			case KindChecklist:
				if len(s.Items) == 0 {
					t.Errorf("checklist section %q has no items", s.Key)
				}
			case KindInspection:
			default:
				t.Errorf("section %q has unknown kind %q", s.Key, s.Kind)
			}
			for _, f := range s.Fields {
				if f.Kind == FieldEnum && len(f.Options) == 0 {
					t.Errorf("enum field %q has no options", f.Key)
				}
				if f.RequiredIf != nil {
					if _, ok := FieldByKey(f.RequiredIf.Field); !ok {
						t.Errorf("field %q depends on unknown field %q", f.Key, f.RequiredIf.Field)
					}
				}
			}
		}
	}
}
