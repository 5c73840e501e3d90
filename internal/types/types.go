package types

import (
	"encoding/json"
	"time"
)

// Phase is a stage in a property's rental lifecycle.
type Phase string

const (
	PhaseProphero          Phase = "prophero"
	PhaseReadyToRent       Phase = "ready_to_rent"
	PhasePublished         Phase = "published"
	PhaseTenantAccepted    Phase = "tenant_accepted"
	PhasePendingProcedures Phase = "pending_procedures"
	PhaseRented            Phase = "rented"
	PhaseIPCUpdate         Phase = "ipc_update"
	PhaseRenewal           Phase = "renewal"
	PhaseFinalization      Phase = "finalization"
)

// LeadPhase is a stage in a lead's qualification funnel.
type LeadPhase string

const (
	LeadNew            LeadPhase = "new"
	LeadContacted      LeadPhase = "contacted"
	LeadVisitScheduled LeadPhase = "visit_scheduled"
	LeadQualified      LeadPhase = "qualified"
	LeadAccepted       LeadPhase = "accepted"
	LeadDiscarded      LeadPhase = "discarded"
)

// LeadPhases lists every lead phase in funnel order.
var LeadPhases = []LeadPhase{
	LeadNew, LeadContacted, LeadVisitScheduled, LeadQualified, LeadAccepted, LeadDiscarded,
}

// Fields is the flat bag of phase-specific values attached to a property.
// Values are JSON-decoded: string, float64, bool, []any or map[string]any.
type Fields map[string]any

// Property is a rental unit tracked through the phases.
type Property struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	PostalCode string    `json:"postal_code"`
	Phase      Phase     `json:"phase"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewProperty is the input for creating a property.
type NewProperty struct {
	Address    string `json:"address" validate:"required,max=300"`
	City       string `json:"city" validate:"max=120"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=16"`
	Fields     Fields `json:"fields,omitempty"`
}

// PropertyPatch updates the core columns of a property. Nil means unchanged.
type PropertyPatch struct {
	Address    *string `json:"address,omitempty" validate:"omitempty,min=1,max=300"`
	City       *string `json:"city,omitempty" validate:"omitempty,max=120"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=16"`
}

// PropertyFilter narrows property listings.
type PropertyFilter struct {
	Phase Phase
	Query string
	Limit int
}

// PropertyTask is the persisted completion state of one section of a phase.
type PropertyTask struct {
	ID          string          `json:"id"`
	PropertyID  string          `json:"property_id"`
	Phase       Phase           `json:"phase"`
	TaskType    string          `json:"task_type"`
	IsCompleted bool            `json:"is_completed"`
	TaskData    json.RawMessage `json:"task_data,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RoomStatus is the inspection verdict for a room.
type RoomStatus string

const (
	RoomGood          RoomStatus = "good"
	RoomIncident      RoomStatus = "incident"
	RoomNotApplicable RoomStatus = "not_applicable"
)

// InspectionRoom is one room of a technical inspection report.
type InspectionRoom struct {
	Key     string     `json:"key" validate:"required,max=64"`
	Name    string     `json:"name" validate:"required,max=120"`
	Status  RoomStatus `json:"status,omitempty" validate:"omitempty,oneof=good incident not_applicable"`
	Comment string     `json:"comment,omitempty" validate:"max=2000"`
	Photos  []string   `json:"photos,omitempty"`
}

// InspectionReport is the technical inspection document nested under a property.
type InspectionReport struct {
	Rooms       []InspectionRoom `json:"rooms" validate:"dive"`
	InspectedBy string           `json:"inspected_by,omitempty"`
	InspectedAt *time.Time       `json:"inspected_at,omitempty"`
}

// Room returns the room with the given key, or nil.
func (r *InspectionReport) Room(key string) *InspectionRoom {
	if r == nil {
		return nil
	}
	for i := range r.Rooms {
		if r.Rooms[i].Key == key {
			return &r.Rooms[i]
		}
	}
	return nil
}

// RoomPatch updates one inspection room. Nil means unchanged.
type RoomPatch struct {
	Name    *string     `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Status  *RoomStatus `json:"status,omitempty" validate:"omitempty,oneof=good incident not_applicable"`
	Comment *string     `json:"comment,omitempty" validate:"omitempty,max=2000"`
	Photos  *[]string   `json:"photos,omitempty"`
}

// Lead is a prospective tenant.
type Lead struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id,omitempty"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Phase      LeadPhase `json:"phase"`
	Interested bool      `json:"interested"`
	Qualified  bool      `json:"qualified"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewLead is the input for creating a lead.
type NewLead struct {
	PropertyID string `json:"property_id,omitempty"`
	FullName   string `json:"full_name" validate:"required,max=200"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Interested bool   `json:"interested"`
	Notes      string `json:"notes,omitempty" validate:"max=4000"`
}

// LeadPatch updates a lead. Nil means unchanged.
type LeadPatch struct {
	PropertyID *string `json:"property_id,omitempty"`
	FullName   *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Interested *bool   `json:"interested,omitempty"`
	Qualified  *bool   `json:"qualified,omitempty"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// LeadFilter narrows lead listings.
type LeadFilter struct {
	Phase      LeadPhase
	PropertyID string
}

// Document is an uploaded file bound to a property field or an inspection room.
type Document struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	FieldKey   string    `json:"field_key,omitempty"`
	RoomKey    string    `json:"room_key,omitempty"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Activity is one entry of the append-only audit log.
type Activity struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	PropertyCount int64  `json:"property_count"`
	LeadCount     int64  `json:"lead_count"`
}

// StoreStats holds aggregate store statistics.
type StoreStats struct {
	PropertyCount int64 `json:"property_count"`
	LeadCount     int64 `json:"lead_count"`
}
