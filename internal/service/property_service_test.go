package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sectionCount() int {
	n := 0
	for _, p := range workflow.Phases() {
		n += len(p.Sections)
	}
	return n
}

func TestPropertyService_CreateSeedsTasks(t *testing.T) {
	h := newHarness(t, PropertyOptions{})

	d := h.createProperty(t, propertyData())

	assert.Equal(t, types.PhaseProphero, d.Phase)
	assert.Len(t, d.Tasks, sectionCount(), "one task per section of every phase")
	assert.Equal(t, types.PhaseProphero, d.Current.Phase)
	assert.Equal(t, 25, d.Current.Percent)
	assert.False(t, d.Current.Complete)

	pd := task(d, types.PhaseProphero, "property_data")
	require.NotNil(t, pd)
	assert.True(t, pd.IsCompleted)
	assert.NotNil(t, pd.CompletedAt)
	assert.JSONEq(t, `{"missing":[]}`, string(pd.TaskData))

	od := task(d, types.PhaseProphero, "owner_data")
	require.NotNil(t, od)
	assert.False(t, od.IsCompleted)
	assert.Nil(t, od.CompletedAt)
}

func TestPropertyService_CreateValidation(t *testing.T) {
	h := newHarness(t, PropertyOptions{})

	_, err := h.props.Create(context.Background(), types.NewProperty{
		Address: "  ",
		Fields: types.Fields{
			"unknown_field":      "x",
			"bedrooms":           2.5,
			"energy_certificate": "01JDOESNOTEXIST",
		},
	})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := map[string]string{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "is required", fields["address"])
	assert.Equal(t, "unknown field", fields["unknown_field"])
	assert.Equal(t, "must be a whole number", fields["bedrooms"])
	assert.Equal(t, "must reference an uploaded document", fields["energy_certificate"])

	props, err := h.props.List(context.Background(), types.PropertyFilter{})
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestPropertyService_PatchFieldsPublishesAndRecomputes(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	d := h.createProperty(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.bus.Subscribe(ctx)
	require.NoError(t, err)

	updated, err := h.props.PatchFields(WithActor(ctx, "gestor@rentops.test"), d.ID, ownerData())
	require.NoError(t, err)

	od := task(updated, types.PhaseProphero, "owner_data")
	require.NotNil(t, od)
	assert.True(t, od.IsCompleted)
	assert.Equal(t, 25, updated.Current.Percent)

	ev := nextEvent(t, ch)
	assert.Equal(t, events.PropertyUpdated, ev.Type)
	assert.Equal(t, d.ID, ev.PropertyID)
	assert.Equal(t, "gestor@rentops.test", ev.Actor)
	assert.Equal(t, []string{"owner_email", "owner_full_name", "owner_iban", "owner_id_number", "owner_phone"}, ev.Fields)

	activity, err := h.props.Activity(ctx, d.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, activity)
	assert.Equal(t, "patch_fields", activity[0].Operation)
	assert.Equal(t, "gestor@rentops.test", activity[0].Actor)
}

func TestPropertyService_PatchFieldsNullClears(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, ownerData())

	first := task(d, types.PhaseProphero, "owner_data")
	require.NotNil(t, first)
	require.True(t, first.IsCompleted)
	completedAt := *first.CompletedAt

	// Rewriting a value keeps the completion timestamp.
	time.Sleep(5 * time.Millisecond)
	d, err := h.props.PatchFields(ctx, d.ID, types.Fields{"owner_phone": "+34600999888"})
	require.NoError(t, err)
	again := task(d, types.PhaseProphero, "owner_data")
	require.NotNil(t, again.CompletedAt)
	assert.True(t, completedAt.Equal(*again.CompletedAt))

	d, err = h.props.PatchFields(ctx, d.ID, types.Fields{"owner_email": nil})
	require.NoError(t, err)
	_, present := d.Fields["owner_email"]
	assert.False(t, present)

	cleared := task(d, types.PhaseProphero, "owner_data")
	assert.False(t, cleared.IsCompleted)
	assert.Nil(t, cleared.CompletedAt)
	var data missingData
	require.NoError(t, json.Unmarshal(cleared.TaskData, &data))
	assert.Equal(t, []string{"owner_email"}, data.Missing)
}

func TestPropertyService_PatchFieldsErrors(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)

	_, err := h.props.PatchFields(ctx, d.ID, types.Fields{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.props.PatchFields(ctx, d.ID, types.Fields{"owner_email": "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.props.PatchFields(ctx, "01JMISSING", types.Fields{"floor": "3"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPropertyService_SetChecklistItem(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)

	d, err := h.props.SetChecklistItem(ctx, d.ID, types.PhaseReadyToRent, "keys_handover", "keys_received", true)
	require.NoError(t, err)
	kh := task(d, types.PhaseReadyToRent, "keys_handover")
	require.NotNil(t, kh)
	assert.False(t, kh.IsCompleted)
	assert.JSONEq(t, `{"keys_received":true}`, string(kh.TaskData))

	d, err = h.props.SetChecklistItem(ctx, d.ID, types.PhaseReadyToRent, "keys_handover", "keys_copied", true)
	require.NoError(t, err)
	assert.True(t, task(d, types.PhaseReadyToRent, "keys_handover").IsCompleted)

	d, err = h.props.SetChecklistItem(ctx, d.ID, types.PhaseReadyToRent, "keys_handover", "keys_copied", false)
	require.NoError(t, err)
	assert.False(t, task(d, types.PhaseReadyToRent, "keys_handover").IsCompleted)

	tests := []struct {
		name    string
		phase   types.Phase
		section string
		item    string
	}{
		{"unknown section", types.PhaseReadyToRent, "nope", "keys_copied"},
		{"section of another phase", types.PhaseProphero, "keys_handover", "keys_copied"},
		{"form section", types.PhaseReadyToRent, "pricing", "monthly_rent"},
		{"unknown item", types.PhaseReadyToRent, "keys_handover", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.props.SetChecklistItem(ctx, d.ID, tt.phase, tt.section, tt.item, true)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPropertyService_Inspection(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)

	report, err := h.props.GetInspection(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Rooms)

	_, err = h.props.UpdateRoom(ctx, d.ID, "kitchen", types.RoomPatch{})
	assert.ErrorIs(t, err, ErrValidation, "a new room needs a name")

	name := "Cocina"
	incident := types.RoomIncident
	d, err = h.props.UpdateRoom(ctx, d.ID, "kitchen", types.RoomPatch{Name: &name, Status: &incident})
	require.NoError(t, err)
	require.NotNil(t, d.Inspection)
	require.Len(t, d.Inspection.Rooms, 1)
	assert.False(t, task(d, types.PhaseReadyToRent, "technical_inspection").IsCompleted,
		"incident without comment and photo is incomplete")

	good := types.RoomGood
	d, err = h.props.UpdateRoom(ctx, d.ID, "kitchen", types.RoomPatch{Status: &good})
	require.NoError(t, err)
	assert.True(t, task(d, types.PhaseReadyToRent, "technical_inspection").IsCompleted)
	assert.NotNil(t, d.Inspection.InspectedAt)

	_, err = h.props.SaveInspection(ctx, d.ID, &types.InspectionReport{Rooms: []types.InspectionRoom{
		{Key: "bath", Name: "Baño"},
		{Key: "bath", Name: "Baño 2"},
	}})
	assert.ErrorIs(t, err, ErrValidation)

	bad := types.RoomStatus("broken")
	_, err = h.props.UpdateRoom(ctx, d.ID, "kitchen", types.RoomPatch{Status: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	d, err = h.props.SaveInspection(ctx, d.ID, &types.InspectionReport{Rooms: []types.InspectionRoom{}})
	require.NoError(t, err)
	assert.False(t, task(d, types.PhaseReadyToRent, "technical_inspection").IsCompleted,
		"an empty report is incomplete")
}

func TestPropertyService_MovePhase(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, propertyData())

	_, err := h.props.Advance(ctx, d.ID)
	var incomplete *IncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.ErrorIs(t, err, ErrPhaseIncomplete)
	assert.Equal(t, types.PhaseProphero, incomplete.Phase)
	assert.Equal(t, []string{"owner_data", "legal_documents", "prophero_review"}, incomplete.Sections)

	_, err = h.props.MovePhase(ctx, d.ID, types.PhasePublished)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.props.MovePhase(ctx, d.ID, types.Phase("archived"))
	assert.ErrorIs(t, err, ErrValidation)

	done := h.completeProphero(t, d.ID)
	assert.True(t, done.Current.Complete)
	assert.Equal(t, 100, done.Current.Percent)

	moved, err := h.props.Advance(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseReadyToRent, moved.Phase)
	assert.Equal(t, types.PhaseReadyToRent, moved.Current.Phase)

	back, err := h.props.MovePhase(ctx, d.ID, types.PhaseProphero)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseProphero, back.Phase)

	same, err := h.props.MovePhase(ctx, d.ID, types.PhaseProphero)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseProphero, same.Phase)
}

func TestPropertyService_AdvanceFromLastPhase(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)

	_, err := h.store.SetPhase(ctx, d.ID, types.PhaseFinalization)
	require.NoError(t, err)

	_, err = h.props.Advance(ctx, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPropertyService_AutoAdvance(t *testing.T) {
	h := newHarness(t, PropertyOptions{AutoAdvance: true})
	d := h.createProperty(t, nil)

	done := h.completeProphero(t, d.ID)
	assert.Equal(t, types.PhaseReadyToRent, done.Phase)

	activity, err := h.props.Activity(context.Background(), d.ID, 1)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "auto_advance", activity[0].Operation)
}

func TestPropertyService_Board(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()

	a := h.createProperty(t, propertyData())
	b := h.createProperty(t, nil)
	_, err := h.store.SetPhase(ctx, b.ID, types.PhaseReadyToRent)
	require.NoError(t, err)

	board, err := h.props.Board(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, board.Total)
	require.Len(t, board.Columns, len(workflow.Phases()))

	assert.Equal(t, types.PhaseProphero, board.Columns[0].Phase)
	require.Len(t, board.Columns[0].Cards, 1)
	assert.Equal(t, a.ID, board.Columns[0].Cards[0].ID)
	assert.Equal(t, 25, board.Columns[0].Cards[0].Percent)

	require.Len(t, board.Columns[1].Cards, 1)
	assert.Equal(t, b.ID, board.Columns[1].Cards[0].ID)
	assert.Equal(t, 0, board.Columns[1].Cards[0].Percent)

	for _, col := range board.Columns[2:] {
		assert.NotNil(t, col.Cards)
		assert.Empty(t, col.Cards)
	}
}

func TestPropertyService_UpdateAndList(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)

	city := "Valencia"
	p, err := h.props.Update(ctx, d.ID, types.PropertyPatch{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Valencia", p.City)
	assert.Equal(t, d.Address, p.Address)

	empty := "   "
	_, err = h.props.Update(ctx, d.ID, types.PropertyPatch{Address: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	found, err := h.props.List(ctx, types.PropertyFilter{Query: "valencia"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = h.props.List(ctx, types.PropertyFilter{Phase: "nope"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPropertyService_DeleteRemovesStoredDocuments(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	d := h.createProperty(t, nil)
	doc := h.uploadPDF(t, d.ID, "energy_certificate")

	require.NoError(t, h.props.Delete(ctx, d.ID))

	_, err := h.storage.Open(ctx, doc.StorageKey)
	assert.ErrorIs(t, err, documents.ErrNotFound)
	_, err = h.props.Get(ctx, d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, h.props.Delete(ctx, d.ID), store.ErrNotFound)
}

func TestPlanTasks_SkipsUnchanged(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	progress := []workflow.PhaseProgress{{
		Phase: types.PhaseProphero,
		Sections: []workflow.SectionStatus{
			{Key: "owner_data", Kind: workflow.KindForm, Complete: true, Missing: []string{}},
			{Key: "legal_documents", Kind: workflow.KindForm, Missing: []string{"energy_certificate"}},
			{Key: "prophero_review", Kind: workflow.KindChecklist, Missing: []string{"photos_reviewed"}},
		},
	}}
	earlier := now.Add(-time.Hour)
	existing := []types.PropertyTask{
		{ID: "t1", Phase: types.PhaseProphero, TaskType: "owner_data", IsCompleted: true,
			TaskData: json.RawMessage(`{"missing":[]}`), CompletedAt: &earlier},
		{ID: "t2", Phase: types.PhaseProphero, TaskType: "legal_documents", IsCompleted: true,
			TaskData: json.RawMessage(`{"missing":[]}`), CompletedAt: &earlier},
	}

	out := planTasks("p1", progress, existing, now)
	require.Len(t, out, 2)

	assert.Equal(t, "t2", out[0].ID)
	assert.False(t, out[0].IsCompleted)
	assert.Nil(t, out[0].CompletedAt)
	assert.JSONEq(t, `{"missing":["energy_certificate"]}`, string(out[0].TaskData))

	assert.Empty(t, out[1].ID, "new rows get their ID from the store")
	assert.Equal(t, "prophero_review", out[1].TaskType)
	assert.JSONEq(t, `{}`, string(out[1].TaskData))
}
