package service

import (
	"context"
	"testing"

	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadService_Create(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	p := h.createProperty(t, nil)

	lead, err := h.leads.Create(ctx, types.NewLead{
		PropertyID: p.ID,
		FullName:   "  Marta Gómez  ",
		Email:      "marta@example.com",
		Phone:      "+34611222333",
		Interested: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "Marta Gómez", lead.FullName)
	assert.Equal(t, types.LeadNew, lead.Phase)

	tests := []struct {
		name  string
		input types.NewLead
		field string
	}{
		{"missing name", types.NewLead{Email: "a@example.com"}, "full_name"},
		{"bad email", types.NewLead{FullName: "Ana", Email: "nope"}, "email"},
		{"unknown property", types.NewLead{FullName: "Ana", PropertyID: "01JMISSING"}, "property_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.leads.Create(ctx, tt.input)
			require.ErrorIs(t, err, ErrValidation)
			verr := err.(*ValidationError)
			require.NotEmpty(t, verr.Errors)
			assert.Equal(t, tt.field, verr.Errors[0].Field)
		})
	}
}

func TestLeadService_AcceptCopiesTenantContact(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	p := h.createProperty(t, nil)

	lead, err := h.leads.Create(ctx, types.NewLead{
		PropertyID: p.ID,
		FullName:   "Marta Gómez",
		Email:      "marta@example.com",
		Phone:      "123", // too short for the tenant phone field
	})
	require.NoError(t, err)

	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := h.bus.Subscribe(sub)
	require.NoError(t, err)

	accepted, err := h.leads.MovePhase(ctx, lead.ID, types.LeadAccepted)
	require.NoError(t, err)
	assert.Equal(t, types.LeadAccepted, accepted.Phase)
	assert.True(t, accepted.Qualified)

	detail, err := h.props.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, detail.Fields["selected_lead_id"])
	assert.Equal(t, "Marta Gómez", detail.Fields["tenant_full_name"])
	assert.Equal(t, "marta@example.com", detail.Fields["tenant_email"])
	assert.NotContains(t, detail.Fields, "tenant_phone")

	// The property update is announced before the lead update.
	assert.Equal(t, events.PropertyUpdated, nextEvent(t, ch).Type)
	ev := nextEvent(t, ch)
	assert.Equal(t, events.LeadUpdated, ev.Type)
	assert.Equal(t, lead.ID, ev.LeadID)
}

func TestLeadService_AcceptRules(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	p := h.createProperty(t, nil)

	orphan, err := h.leads.Create(ctx, types.NewLead{FullName: "Sin Inmueble"})
	require.NoError(t, err)
	_, err = h.leads.MovePhase(ctx, orphan.ID, types.LeadAccepted)
	assert.ErrorIs(t, err, ErrValidation)

	first, err := h.leads.Create(ctx, types.NewLead{PropertyID: p.ID, FullName: "Primero"})
	require.NoError(t, err)
	second, err := h.leads.Create(ctx, types.NewLead{PropertyID: p.ID, FullName: "Segundo"})
	require.NoError(t, err)

	_, err = h.leads.MovePhase(ctx, first.ID, types.LeadAccepted)
	require.NoError(t, err)
	_, err = h.leads.MovePhase(ctx, second.ID, types.LeadAccepted)
	assert.ErrorIs(t, err, store.ErrConflict)

	other := h.createProperty(t, nil)
	_, err = h.leads.Update(ctx, first.ID, types.LeadPatch{PropertyID: &other.ID})
	assert.ErrorIs(t, err, ErrValidation, "accepted leads stay on their property")

	_, err = h.leads.MovePhase(ctx, first.ID, types.LeadPhase("hired"))
	assert.ErrorIs(t, err, ErrValidation)

	// Stepping back releases the property.
	_, err = h.leads.MovePhase(ctx, first.ID, types.LeadQualified)
	require.NoError(t, err)
	detail, err := h.props.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.NotContains(t, detail.Fields, "selected_lead_id")

	_, err = h.leads.MovePhase(ctx, second.ID, types.LeadAccepted)
	assert.NoError(t, err)
}

func TestLeadService_UpdateListDelete(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	p := h.createProperty(t, nil)

	lead, err := h.leads.Create(ctx, types.NewLead{FullName: "Carlos"})
	require.NoError(t, err)

	notes := "Visita el jueves"
	updated, err := h.leads.Update(ctx, lead.ID, types.LeadPatch{PropertyID: &p.ID, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.PropertyID)
	assert.Equal(t, notes, updated.Notes)

	bad := "not-an-email"
	_, err = h.leads.Update(ctx, lead.ID, types.LeadPatch{Email: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	listed, err := h.leads.List(ctx, types.LeadFilter{PropertyID: p.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = h.leads.List(ctx, types.LeadFilter{Phase: "hired"})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, h.leads.Delete(ctx, lead.ID))
	_, err = h.leads.Get(ctx, lead.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, h.leads.Delete(ctx, lead.ID), store.ErrNotFound)
}

func TestLeadService_DeleteAcceptedReleasesProperty(t *testing.T) {
	h := newHarness(t, PropertyOptions{})
	ctx := context.Background()
	p := h.createProperty(t, nil)

	lead, err := h.leads.Create(ctx, types.NewLead{PropertyID: p.ID, FullName: "Marta Gómez", Email: "marta@example.com"})
	require.NoError(t, err)
	_, err = h.leads.MovePhase(ctx, lead.ID, types.LeadAccepted)
	require.NoError(t, err)

	require.NoError(t, h.leads.Delete(ctx, lead.ID))

	detail, err := h.props.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.NotContains(t, detail.Fields, "selected_lead_id")
	assert.Equal(t, "Marta Gómez", detail.Fields["tenant_full_name"], "contact fields are kept")

	ref, ok := workflow.FieldByKey("selected_lead_id")
	require.True(t, ok)
	if tk := task(detail, ref.Phase, ref.Section); tk != nil {
		assert.False(t, tk.IsCompleted)
	}

	// Another lead can now be accepted.
	next, err := h.leads.Create(ctx, types.NewLead{PropertyID: p.ID, FullName: "Segundo"})
	require.NoError(t, err)
	_, err = h.leads.MovePhase(ctx, next.ID, types.LeadAccepted)
	assert.NoError(t, err)

	assert.ErrorIs(t, h.leads.Delete(ctx, lead.ID), store.ErrNotFound)
}
