package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/hyperengineering/rentops/internal/validation"
	"github.com/hyperengineering/rentops/internal/workflow"
)

// Activity entity names.
const (
	EntityProperty = "property"
	EntityLead     = "lead"
)

// PropertyDetail is the full view of one property.
type PropertyDetail struct {
	types.Property
	Fields     types.Fields             `json:"fields"`
	Tasks      []types.PropertyTask     `json:"tasks"`
	Inspection *types.InspectionReport  `json:"inspection,omitempty"`
	Progress   []workflow.PhaseProgress `json:"progress"`
	Current    workflow.PhaseProgress   `json:"current"`
}

// BoardCard is one property on the kanban board.
type BoardCard struct {
	ID        string      `json:"id"`
	Address   string      `json:"address"`
	City      string      `json:"city"`
	Phase     types.Phase `json:"phase"`
	Percent   int         `json:"percent"`
	Complete  bool        `json:"complete"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BoardColumn groups the cards of one phase.
type BoardColumn struct {
	Phase types.Phase `json:"phase"`
	Title string      `json:"title"`
	Cards []BoardCard `json:"cards"`
}

// Board is the kanban view over every property.
type Board struct {
	Columns []BoardColumn `json:"columns"`
	Total   int           `json:"total"`
}

// PropertyOptions tunes PropertyService behaviour.
type PropertyOptions struct {
	// AutoAdvance moves a property to the next phase as soon as a write
	// completes its current phase.
	AutoAdvance bool
}

// PropertyService implements the property workflow: field writes, checklist
// toggles, inspections and phase transitions. Every write re-evaluates the
// workflow and persists the resulting task rows.
type PropertyService struct {
	store  store.Store
	bus    events.Bus
	docs   documents.Storage
	logger *slog.Logger
	opts   PropertyOptions
	now    func() time.Time
}

// NewPropertyService creates a PropertyService. docs may be nil when no
// document storage is configured.
func NewPropertyService(st store.Store, bus events.Bus, docs documents.Storage, logger *slog.Logger, opts PropertyOptions) *PropertyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertyService{
		store:  st,
		bus:    bus,
		docs:   docs,
		logger: logger.With("component", "property_service"),
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and inserts a new property in the first phase.
func (s *PropertyService) Create(ctx context.Context, np types.NewProperty) (*PropertyDetail, error) {
	np.Address = strings.TrimSpace(np.Address)
	np.City = strings.TrimSpace(np.City)
	np.PostalCode = strings.TrimSpace(np.PostalCode)

	var c validation.Collector
	c.AddAll(validation.Struct(np))
	c.AddAll(s.validateFields(ctx, "", np.Fields))
	if c.HasErrors() {
		return nil, invalidAll(c.Errors())
	}

	fields := types.Fields{}
	for k, v := range np.Fields {
		if v != nil {
			fields[k] = v
		}
	}

	p := &types.Property{
		Address:    np.Address,
		City:       np.City,
		PostalCode: np.PostalCode,
		Phase:      workflow.Phases()[0].Key,
	}
	if err := s.store.CreateProperty(ctx, p, fields); err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}

	detail, err := s.sync(ctx, p)
	if err != nil {
		return nil, err
	}

	s.record(ctx, EntityProperty, p.ID, "create", map[string]any{
		"address": p.Address,
		"city":    p.City,
		"fields":  sortedKeys(fields),
	})
	s.publish(ctx, events.Event{Type: events.PropertyCreated, PropertyID: p.ID, Phase: p.Phase})
	s.logger.Info("property created", "action", "create", "property_id", p.ID)
	return detail, nil
}

// Get returns a property with its fields, tasks, inspection and progress.
func (s *PropertyService) Get(ctx context.Context, id string) (*PropertyDetail, error) {
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	detail, _, err := s.load(ctx, p)
	return detail, err
}

// List returns properties matching filter, most recently updated first.
func (s *PropertyService) List(ctx context.Context, filter types.PropertyFilter) ([]types.Property, error) {
	if filter.Phase != "" {
		if _, ok := workflow.PhaseByKey(filter.Phase); !ok {
			return nil, invalid("phase", "must be one of: "+strings.Join(workflow.PhaseKeys(), ", "))
		}
	}
	props, err := s.store.ListProperties(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

// Board groups every property by phase. Card progress comes from the
// persisted task rows of each property's current phase.
func (s *PropertyService) Board(ctx context.Context) (*Board, error) {
	props, err := s.store.ListProperties(ctx, types.PropertyFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	tasks, err := s.store.ListCurrentPhaseTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	completed := make(map[string]map[string]bool, len(props))
	for _, t := range tasks {
		if completed[t.PropertyID] == nil {
			completed[t.PropertyID] = map[string]bool{}
		}
		completed[t.PropertyID][t.TaskType] = t.IsCompleted
	}

	phases := workflow.Phases()
	board := &Board{Columns: make([]BoardColumn, len(phases)), Total: len(props)}
	column := make(map[types.Phase]int, len(phases))
	for i, p := range phases {
		board.Columns[i] = BoardColumn{Phase: p.Key, Title: p.Title, Cards: []BoardCard{}}
		column[p.Key] = i
	}

	for _, p := range props {
		i, ok := column[p.Phase]
		if !ok {
			s.logger.Warn("property in unknown phase", "property_id", p.ID, "phase", p.Phase)
			continue
		}
		var required, done int
		for _, sec := range phases[i].Sections {
			if sec.Optional {
				continue
			}
			required++
			if completed[p.ID][sec.Key] {
				done++
			}
		}
		board.Columns[i].Cards = append(board.Columns[i].Cards, BoardCard{
			ID:        p.ID,
			Address:   p.Address,
			City:      p.City,
			Phase:     p.Phase,
			Percent:   workflow.Percent(done, required),
			Complete:  done == required,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return board, nil
}

// Update changes the core columns of a property.
func (s *PropertyService) Update(ctx context.Context, id string, patch types.PropertyPatch) (*types.Property, error) {
	if patch.Address != nil {
		trimmed := strings.TrimSpace(*patch.Address)
		patch.Address = &trimmed
	}
	if errs := validation.Struct(patch); len(errs) > 0 {
		return nil, invalidAll(errs)
	}

	p, err := s.store.UpdateProperty(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update property: %w", err)
	}

	s.record(ctx, EntityProperty, id, "update", patch)
	s.publish(ctx, events.Event{Type: events.PropertyUpdated, PropertyID: id, Phase: p.Phase})
	return p, nil
}

// PatchFields validates and writes field values. A nil value clears the
// field. Keys not named in the patch are left untouched.
func (s *PropertyService) PatchFields(ctx context.Context, id string, patch types.Fields) (*PropertyDetail, error) {
	if len(patch) == 0 {
		return nil, invalid("fields", "is required")
	}
	if errs := s.validateFields(ctx, id, patch); len(errs) > 0 {
		return nil, invalidAll(errs)
	}

	if _, err := s.store.PatchFields(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("failed to patch fields: %w", err)
	}

	keys := sortedKeys(patch)
	s.record(ctx, EntityProperty, id, "patch_fields", map[string]any{"fields": patch})
	return s.afterWrite(ctx, id, keys)
}

// SetChecklistItem checks or unchecks one item of a checklist section.
func (s *PropertyService) SetChecklistItem(ctx context.Context, id string, phase types.Phase, section, item string, checked bool) (*PropertyDetail, error) {
	sec, ok := workflow.SectionByKey(phase, section)
	if !ok {
		return nil, invalid("section", fmt.Sprintf("unknown section %q in phase %q", section, phase))
	}
	if sec.Kind != workflow.KindChecklist {
		return nil, invalid("section", fmt.Sprintf("section %q is not a checklist", section))
	}
	if _, ok := sec.Item(item); !ok {
		return nil, invalid("item", fmt.Sprintf("unknown item %q in section %q", item, section))
	}

	if _, err := s.store.GetProperty(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	task := types.PropertyTask{PropertyID: id, Phase: phase, TaskType: section}
	for _, t := range tasks {
		if t.Phase == phase && t.TaskType == section {
			task = t
			break
		}
	}
	items := checklistItems(task.TaskData)
	items[item] = checked
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode checklist: %w", err)
	}
	task.TaskData = data
	if err := s.store.UpsertTasks(ctx, []types.PropertyTask{task}); err != nil {
		return nil, fmt.Errorf("failed to save checklist: %w", err)
	}

	s.record(ctx, EntityProperty, id, "checklist", map[string]any{
		"phase": phase, "section": section, "item": item, "checked": checked,
	})
	return s.afterWrite(ctx, id, nil)
}

// GetInspection returns the technical inspection report. A property without
// one yields an empty report.
func (s *PropertyService) GetInspection(ctx context.Context, id string) (*types.InspectionReport, error) {
	if _, err := s.store.GetProperty(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	report, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	if report == nil {
		report = &types.InspectionReport{Rooms: []types.InspectionRoom{}}
	}
	return report, nil
}

// SaveInspection replaces the whole inspection report.
func (s *PropertyService) SaveInspection(ctx context.Context, id string, report *types.InspectionReport) (*PropertyDetail, error) {
	if report == nil {
		return nil, invalid("rooms", "is required")
	}
	if errs := validateInspection(report); len(errs) > 0 {
		return nil, invalidAll(errs)
	}
	if _, err := s.store.GetProperty(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	s.stampInspection(ctx, report)
	if err := s.store.SaveInspection(ctx, id, report); err != nil {
		return nil, fmt.Errorf("failed to save inspection: %w", err)
	}

	s.record(ctx, EntityProperty, id, "save_inspection", map[string]any{"rooms": len(report.Rooms)})
	return s.afterWrite(ctx, id, []string{"inspection"})
}

// UpdateRoom patches one room of the inspection report, creating the room
// when it does not exist yet and a name is given.
func (s *PropertyService) UpdateRoom(ctx context.Context, id, roomKey string, patch types.RoomPatch) (*PropertyDetail, error) {
	var c validation.Collector
	c.Add(validation.Var("room", roomKey, "required,max=64"))
	c.AddAll(validation.Struct(patch))
	if c.HasErrors() {
		return nil, invalidAll(c.Errors())
	}

	report, err := s.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}

	room := report.Room(roomKey)
	if room == nil {
		if patch.Name == nil {
			return nil, invalid("name", "is required for a new room")
		}
		report.Rooms = append(report.Rooms, types.InspectionRoom{Key: roomKey})
		room = &report.Rooms[len(report.Rooms)-1]
	}
	if patch.Name != nil {
		room.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Status != nil {
		room.Status = *patch.Status
	}
	if patch.Comment != nil {
		room.Comment = *patch.Comment
	}
	if patch.Photos != nil {
		room.Photos = append([]string(nil), (*patch.Photos)...)
	}

	if errs := validateInspection(report); len(errs) > 0 {
		return nil, invalidAll(errs)
	}
	s.stampInspection(ctx, report)
	if err := s.store.SaveInspection(ctx, id, report); err != nil {
		return nil, fmt.Errorf("failed to save inspection: %w", err)
	}

	s.record(ctx, EntityProperty, id, "update_room", map[string]any{"room": roomKey, "patch": patch})
	return s.afterWrite(ctx, id, []string{"inspection"})
}

// Progress evaluates every phase of a property.
func (s *PropertyService) Progress(ctx context.Context, id string) ([]workflow.PhaseProgress, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail.Progress, nil
}

// Advance moves a property to the next phase. The current phase must be
// complete.
func (s *PropertyService) Advance(ctx context.Context, id string) (*PropertyDetail, error) {
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	next, ok := workflow.Next(p.Phase)
	if !ok {
		return nil, fmt.Errorf("%w: %s is the last phase", ErrInvalidTransition, p.Phase)
	}
	return s.MovePhase(ctx, id, next)
}

// MovePhase moves a property to target. Moving back is always allowed;
// moving forward is limited to the next phase and requires the current one
// to be complete.
func (s *PropertyService) MovePhase(ctx context.Context, id string, target types.Phase) (*PropertyDetail, error) {
	if _, ok := workflow.PhaseByKey(target); !ok {
		return nil, invalid("phase", "must be one of: "+strings.Join(workflow.PhaseKeys(), ", "))
	}
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	from, to := workflow.Index(p.Phase), workflow.Index(target)
	switch {
	case to == from:
		detail, _, err := s.load(ctx, p)
		return detail, err
	case to > from+1:
		return nil, fmt.Errorf("%w: cannot skip from %s to %s", ErrInvalidTransition, p.Phase, target)
	case to == from+1:
		detail, _, err := s.load(ctx, p)
		if err != nil {
			return nil, err
		}
		if !detail.Current.Complete {
			return nil, &IncompleteError{Phase: p.Phase, Sections: detail.Current.Incomplete()}
		}
	}

	return s.setPhase(ctx, p, target, "move_phase")
}

// Delete removes a property, its stored documents and everything that
// cascades from it.
func (s *PropertyService) Delete(ctx context.Context, id string) error {
	docs, err := s.store.ListDocuments(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if err := s.store.DeleteProperty(ctx, id); err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}

	if s.docs != nil {
		for _, d := range docs {
			if err := s.docs.Delete(ctx, d.StorageKey); err != nil && !errors.Is(err, documents.ErrNotFound) {
				s.logger.Warn("failed to delete stored document",
					"property_id", id,
					"document_id", d.ID,
					"error", err,
				)
			}
		}
	}

	s.record(ctx, EntityProperty, id, "delete", map[string]any{"documents": len(docs)})
	s.publish(ctx, events.Event{Type: events.PropertyDeleted, PropertyID: id})
	s.logger.Info("property deleted", "action", "delete", "property_id", id)
	return nil
}

// Activity returns the newest audit entries of a property.
func (s *PropertyService) Activity(ctx context.Context, id string, limit int) ([]types.Activity, error) {
	if _, err := s.store.GetProperty(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	entries, err := s.store.ListActivity(ctx, EntityProperty, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}

// afterWrite re-evaluates a property after a write, applies auto-advance and
// announces the change.
func (s *PropertyService) afterWrite(ctx context.Context, id string, keys []string) (*PropertyDetail, error) {
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	detail, err := s.sync(ctx, p)
	if err != nil {
		return nil, err
	}

	if s.opts.AutoAdvance && detail.Current.Complete {
		if next, ok := workflow.Next(p.Phase); ok {
			return s.setPhase(ctx, p, next, "auto_advance")
		}
	}

	s.publish(ctx, events.Event{Type: events.PropertyUpdated, PropertyID: id, Phase: p.Phase, Fields: keys})
	return detail, nil
}

func (s *PropertyService) setPhase(ctx context.Context, p *types.Property, target types.Phase, op string) (*PropertyDetail, error) {
	from := p.Phase
	updated, err := s.store.SetPhase(ctx, p.ID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to set phase: %w", err)
	}
	detail, _, err := s.load(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.record(ctx, EntityProperty, p.ID, op, map[string]any{"from": from, "to": target})
	s.publish(ctx, events.Event{Type: events.PropertyUpdated, PropertyID: p.ID, Phase: target})
	s.logger.Info("property phase changed",
		"action", op,
		"property_id", p.ID,
		"from", from,
		"to", target,
	)
	return detail, nil
}

// load reads everything the evaluator needs and evaluates it without
// writing anything.
func (s *PropertyService) load(ctx context.Context, p *types.Property) (*PropertyDetail, []types.PropertyTask, error) {
	fields, err := s.store.GetFields(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get fields: %w", err)
	}
	inspection, err := s.store.GetInspection(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	progress := workflow.EvaluateAll(workflow.Snapshot{
		Fields:     fields,
		Checklists: checklists(tasks),
		Inspection: inspection,
	})
	detail := &PropertyDetail{
		Property:   *p,
		Fields:     fields,
		Tasks:      tasks,
		Inspection: inspection,
		Progress:   progress,
	}
	for _, pp := range progress {
		if pp.Phase == p.Phase {
			detail.Current = pp
			break
		}
	}
	return detail, tasks, nil
}

// sync evaluates a property and persists every task row whose completion
// or data changed.
func (s *PropertyService) sync(ctx context.Context, p *types.Property) (*PropertyDetail, error) {
	detail, tasks, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	changed := planTasks(p.ID, detail.Progress, tasks, s.now())
	if len(changed) == 0 {
		return detail, nil
	}
	if err := s.store.UpsertTasks(ctx, changed); err != nil {
		return nil, fmt.Errorf("failed to save tasks: %w", err)
	}
	if detail.Tasks, err = s.store.ListTasks(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return detail, nil
}

// ValidateFields checks a field patch for an existing property without
// writing it.
func (s *PropertyService) ValidateFields(ctx context.Context, id string, patch types.Fields) error {
	if _, err := s.store.GetProperty(ctx, id); err != nil {
		return fmt.Errorf("failed to get property: %w", err)
	}
	return invalidAll(s.validateFields(ctx, id, patch))
}

// validateFields checks every key and value of a field patch. propertyID is
// empty while the property does not exist yet.
func (s *PropertyService) validateFields(ctx context.Context, propertyID string, patch types.Fields) []validation.ValidationError {
	var c validation.Collector
	for _, key := range sortedKeys(patch) {
		ref, ok := workflow.FieldByKey(key)
		if !ok {
			c.Add(&validation.ValidationError{Field: key, Message: "unknown field"})
			continue
		}
		v := patch[key]
		if err := workflow.ValidateValue(ref.Field, v); err != nil {
			c.Add(err)
			continue
		}
		if ref.Field.Kind == workflow.FieldDocument {
			c.Add(s.validateDocumentRef(ctx, propertyID, key, v))
		}
	}
	return c.Errors()
}

func (s *PropertyService) validateDocumentRef(ctx context.Context, propertyID, key string, v any) *validation.ValidationError {
	docID, _ := v.(string)
	if strings.TrimSpace(docID) == "" {
		return nil
	}
	notUploaded := &validation.ValidationError{Field: key, Message: "must reference an uploaded document"}
	if propertyID == "" {
		return notUploaded
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil || doc.PropertyID != propertyID {
		return notUploaded
	}
	if doc.FieldKey != key {
		return &validation.ValidationError{Field: key, Message: "must reference a document uploaded for this field"}
	}
	return nil
}

func (s *PropertyService) stampInspection(ctx context.Context, report *types.InspectionReport) {
	if report.InspectedAt != nil || !workflow.InspectionComplete(report) {
		return
	}
	at := s.now()
	report.InspectedAt = &at
	if report.InspectedBy == "" {
		report.InspectedBy = ActorFromContext(ctx)
	}
}

func (s *PropertyService) record(ctx context.Context, entity, id, op string, payload any) {
	record(ctx, s.store, s.logger, entity, id, op, payload)
}

func (s *PropertyService) publish(ctx context.Context, ev events.Event) {
	publish(ctx, s.bus, s.logger, ev)
}

func record(ctx context.Context, st store.Store, logger *slog.Logger, entity, id, op string, payload any) {
	entry := &types.Activity{
		Entity:    entity,
		EntityID:  id,
		Operation: op,
		Actor:     ActorFromContext(ctx),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("failed to encode activity payload", "entity_id", id, "error", err)
		} else {
			entry.Payload = data
		}
	}
	if err := st.AppendActivity(ctx, entry); err != nil {
		logger.Warn("failed to record activity",
			"entity", entity,
			"entity_id", id,
			"operation", op,
			"error", err,
		)
	}
}

func publish(ctx context.Context, bus events.Bus, logger *slog.Logger, ev events.Event) {
	if bus == nil {
		return
	}
	if ev.Actor == "" {
		ev.Actor = ActorFromContext(ctx)
	}
	if err := bus.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish event",
			"type", ev.Type,
			"property_id", ev.PropertyID,
			"error", err,
		)
	}
}

func validateInspection(report *types.InspectionReport) []validation.ValidationError {
	var c validation.Collector
	c.AddAll(validation.Struct(report))
	seen := make(map[string]bool, len(report.Rooms))
	for i, r := range report.Rooms {
		if seen[r.Key] {
			c.Add(&validation.ValidationError{
				Field:   fmt.Sprintf("rooms[%d].key", i),
				Message: fmt.Sprintf("duplicate room %q", r.Key),
			})
		}
		seen[r.Key] = true
	}
	return c.Errors()
}

type missingData struct {
	Missing []string `json:"missing"`
}

// planTasks returns the task rows that differ from existing after
// evaluation. Existing row IDs and completion timestamps are kept.
func planTasks(propertyID string, progress []workflow.PhaseProgress, existing []types.PropertyTask, now time.Time) []types.PropertyTask {
	index := make(map[string]types.PropertyTask, len(existing))
	for _, t := range existing {
		index[string(t.Phase)+"/"+t.TaskType] = t
	}

	var out []types.PropertyTask
	for _, pp := range progress {
		for _, st := range pp.Sections {
			prev, ok := index[string(pp.Phase)+"/"+st.Key]
			next := types.PropertyTask{
				ID:          prev.ID,
				PropertyID:  propertyID,
				Phase:       pp.Phase,
				TaskType:    st.Key,
				IsCompleted: st.Complete,
			}
			if st.Kind == workflow.KindChecklist {
				next.TaskData = prev.TaskData
				if len(next.TaskData) == 0 {
					next.TaskData = json.RawMessage(`{}`)
				}
			} else {
				next.TaskData, _ = json.Marshal(missingData{Missing: st.Missing})
			}
			switch {
			case st.Complete && prev.IsCompleted && prev.CompletedAt != nil:
				next.CompletedAt = prev.CompletedAt
			case st.Complete:
				at := now
				next.CompletedAt = &at
			}

			if ok && prev.IsCompleted == next.IsCompleted && bytes.Equal(prev.TaskData, next.TaskData) {
				continue
			}
			out = append(out, next)
		}
	}
	return out
}

// checklists extracts the checked items of every checklist task.
func checklists(tasks []types.PropertyTask) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	for _, t := range tasks {
		sec, ok := workflow.SectionByKey(t.Phase, t.TaskType)
		if !ok || sec.Kind != workflow.KindChecklist {
			continue
		}
		out[t.TaskType] = checklistItems(t.TaskData)
	}
	return out
}

func checklistItems(data json.RawMessage) map[string]bool {
	items := map[string]bool{}
	if len(data) > 0 {
		// Malformed data counts as nothing checked.
		_ = json.Unmarshal(data, &items)
	}
	return items
}

func sortedKeys(m types.Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
