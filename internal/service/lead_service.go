package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/validation"
	"github.com/hyperengineering/rentops/internal/workflow"
)

// Property fields written when a lead is accepted as tenant.
const (
	fieldSelectedLead = "selected_lead_id"
	fieldTenantName   = "tenant_full_name"
	fieldTenantEmail  = "tenant_email"
	fieldTenantPhone  = "tenant_phone"
)

// LeadService manages prospective tenants and hands the accepted one over
// to its property.
type LeadService struct {
	store      store.Store
	properties *PropertyService
	bus        events.Bus
	logger     *slog.Logger
}

// NewLeadService creates a LeadService.
func NewLeadService(st store.Store, properties *PropertyService, bus events.Bus, logger *slog.Logger) *LeadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadService{
		store:      st,
		properties: properties,
		bus:        bus,
		logger:     logger.With("component", "lead_service"),
	}
}

// Create validates and inserts a lead in the first funnel phase.
func (s *LeadService) Create(ctx context.Context, nl types.NewLead) (*types.Lead, error) {
	nl.FullName = strings.TrimSpace(nl.FullName)
	nl.Email = strings.TrimSpace(nl.Email)
	nl.Phone = strings.TrimSpace(nl.Phone)

	var c validation.Collector
	c.AddAll(validation.Struct(nl))
	c.Add(s.checkProperty(ctx, nl.PropertyID))
	if c.HasErrors() {
		return nil, invalidAll(c.Errors())
	}

	lead := &types.Lead{
		PropertyID: nl.PropertyID,
		FullName:   nl.FullName,
		Email:      nl.Email,
		Phone:      nl.Phone,
		Phase:      types.LeadNew,
		Interested: nl.Interested,
		Notes:      nl.Notes,
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	s.record(ctx, lead.ID, "create", map[string]any{"full_name": lead.FullName, "property_id": lead.PropertyID})
	s.publish(ctx, lead)
	return lead, nil
}

// Get returns a lead by ID.
func (s *LeadService) Get(ctx context.Context, id string) (*types.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

// List returns leads matching filter, newest first.
func (s *LeadService) List(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error) {
	if filter.Phase != "" && !validLeadPhase(filter.Phase) {
		return nil, invalid("phase", "must be one of: "+leadPhaseList())
	}
	leads, err := s.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

// Update applies patch to a lead. An accepted lead stays bound to its
// property.
func (s *LeadService) Update(ctx context.Context, id string, patch types.LeadPatch) (*types.Lead, error) {
	if errs := validation.Struct(patch); len(errs) > 0 {
		return nil, invalidAll(errs)
	}
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	if patch.PropertyID != nil && *patch.PropertyID != lead.PropertyID {
		if lead.Phase == types.LeadAccepted {
			return nil, invalid("property_id", "cannot change once the lead is accepted")
		}
		if verr := s.checkProperty(ctx, *patch.PropertyID); verr != nil {
			return nil, invalidAll([]validation.ValidationError{*verr})
		}
		lead.PropertyID = *patch.PropertyID
	}
	if patch.FullName != nil {
		lead.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Email != nil {
		lead.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		lead.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Interested != nil {
		lead.Interested = *patch.Interested
	}
	if patch.Qualified != nil {
		lead.Qualified = *patch.Qualified
	}
	if patch.Notes != nil {
		lead.Notes = *patch.Notes
	}

	if err := s.store.UpdateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	s.record(ctx, id, "update", patch)
	s.publish(ctx, lead)
	return lead, nil
}

// MovePhase moves a lead through the funnel. Accepting a lead requires a
// property without another accepted lead and copies the tenant contact into
// the property's fields. Leaving accepted clears the property's selection.
func (s *LeadService) MovePhase(ctx context.Context, id string, phase types.LeadPhase) (*types.Lead, error) {
	if !validLeadPhase(phase) {
		return nil, invalid("phase", "must be one of: "+leadPhaseList())
	}
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	if lead.Phase == phase {
		return lead, nil
	}

	from := lead.Phase
	if phase == types.LeadAccepted {
		if lead.PropertyID == "" {
			return nil, invalid("property_id", "is required to accept a lead")
		}
		accepted, err := s.store.ListLeads(ctx, types.LeadFilter{Phase: types.LeadAccepted, PropertyID: lead.PropertyID})
		if err != nil {
			return nil, fmt.Errorf("failed to list leads: %w", err)
		}
		if len(accepted) > 0 {
			return nil, fmt.Errorf("%w: property %s already has accepted lead %s", store.ErrConflict, lead.PropertyID, accepted[0].ID)
		}
		lead.Qualified = true
	}

	lead.Phase = phase
	if err := s.store.UpdateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	switch {
	case phase == types.LeadAccepted:
		if err := s.handOver(ctx, lead); err != nil {
			lead.Phase = from
			if rerr := s.store.UpdateLead(ctx, lead); rerr != nil {
				s.logger.Error("failed to restore lead phase", "lead_id", id, "error", rerr)
			}
			return nil, err
		}
	case from == types.LeadAccepted && lead.PropertyID != "":
		s.release(ctx, lead)
	}

	s.record(ctx, id, "move_phase", map[string]any{"from": from, "to": phase})
	s.publish(ctx, lead)
	s.logger.Info("lead phase changed",
		"action", "move_phase",
		"lead_id", id,
		"property_id", lead.PropertyID,
		"from", from,
		"to", phase,
	)
	return lead, nil
}

// Delete removes a lead. Deleting the accepted lead of a property clears the
// property's tenant selection.
func (s *LeadService) Delete(ctx context.Context, id string) error {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLead(ctx, id); err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if lead.Phase == types.LeadAccepted && lead.PropertyID != "" {
		s.release(ctx, lead)
	}
	s.record(ctx, id, "delete", nil)
	publish(ctx, s.bus, s.logger, events.Event{Type: events.LeadDeleted, LeadID: id})
	return nil
}

// handOver copies the accepted lead's contact into the property. Values that
// do not pass the field rules are skipped rather than failing the move.
func (s *LeadService) handOver(ctx context.Context, lead *types.Lead) error {
	fields := types.Fields{fieldSelectedLead: lead.ID}
	for key, value := range map[string]string{
		fieldTenantName:  lead.FullName,
		fieldTenantEmail: lead.Email,
		fieldTenantPhone: lead.Phone,
	} {
		if value == "" {
			continue
		}
		ref, ok := workflow.FieldByKey(key)
		if !ok {
			continue
		}
		if verr := workflow.ValidateValue(ref.Field, value); verr != nil {
			s.logger.Warn("skipping tenant field",
				"lead_id", lead.ID,
				"field", key,
				"reason", verr.Message,
			)
			continue
		}
		fields[key] = value
	}

	if _, err := s.properties.PatchFields(ctx, lead.PropertyID, fields); err != nil {
		return fmt.Errorf("failed to hand over lead: %w", err)
	}
	return nil
}

func (s *LeadService) release(ctx context.Context, lead *types.Lead) {
	detail, err := s.properties.Get(ctx, lead.PropertyID)
	if err != nil {
		s.logger.Warn("failed to load property", "property_id", lead.PropertyID, "error", err)
		return
	}
	if selected, _ := detail.Fields[fieldSelectedLead].(string); selected != lead.ID {
		return
	}
	if _, err := s.properties.PatchFields(ctx, lead.PropertyID, types.Fields{fieldSelectedLead: nil}); err != nil {
		s.logger.Warn("failed to clear selected lead", "property_id", lead.PropertyID, "error", err)
	}
}

func (s *LeadService) checkProperty(ctx context.Context, propertyID string) *validation.ValidationError {
	if propertyID == "" {
		return nil
	}
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &validation.ValidationError{Field: "property_id", Message: "unknown property"}
		}
		return &validation.ValidationError{Field: "property_id", Message: "could not be checked"}
	}
	return nil
}

func (s *LeadService) record(ctx context.Context, id, op string, payload any) {
	record(ctx, s.store, s.logger, EntityLead, id, op, payload)
}

func (s *LeadService) publish(ctx context.Context, lead *types.Lead) {
	publish(ctx, s.bus, s.logger, events.Event{Type: events.LeadUpdated, LeadID: lead.ID, PropertyID: lead.PropertyID})
}

func validLeadPhase(p types.LeadPhase) bool {
	for _, lp := range types.LeadPhases {
		if lp == p {
			return true
		}
	}
	return false
}

func leadPhaseList() string {
	names := make([]string, len(types.LeadPhases))
	for i, lp := range types.LeadPhases {
		names[i] = string(lp)
	}
	return strings.Join(names, ", ")
}
