package store

import (
	"context"

	"github.com/hyperengineering/rentops/internal/types"
)

// Store defines the interface contract for all rental storage operations.
type Store interface {
	CreateProperty(ctx context.Context, p *types.Property, fields types.Fields) error
	GetProperty(ctx context.Context, id string) (*types.Property, error)
	ListProperties(ctx context.Context, filter types.PropertyFilter) ([]types.Property, error)
	UpdateProperty(ctx context.Context, id string, patch types.PropertyPatch) (*types.Property, error)
	SetPhase(ctx context.Context, id string, phase types.Phase) (*types.Property, error)
	DeleteProperty(ctx context.Context, id string) error

	GetFields(ctx context.Context, propertyID string) (types.Fields, error)
	PatchFields(ctx context.Context, propertyID string, patch types.Fields) (types.Fields, error)

	ListTasks(ctx context.Context, propertyID string) ([]types.PropertyTask, error)
	ListCurrentPhaseTasks(ctx context.Context) ([]types.PropertyTask, error)
	UpsertTasks(ctx context.Context, tasks []types.PropertyTask) error

	GetInspection(ctx context.Context, propertyID string) (*types.InspectionReport, error)
	SaveInspection(ctx context.Context, propertyID string, report *types.InspectionReport) error

	CreateLead(ctx context.Context, lead *types.Lead) error
	GetLead(ctx context.Context, id string) (*types.Lead, error)
	ListLeads(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error)
	UpdateLead(ctx context.Context, lead *types.Lead) error
	DeleteLead(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocuments(ctx context.Context, propertyID string) ([]types.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	AppendActivity(ctx context.Context, entry *types.Activity) error
	ListActivity(ctx context.Context, entity, entityID string, limit int) ([]types.Activity, error)

	GetStats(ctx context.Context) (*types.StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}
