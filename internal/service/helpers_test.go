package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hyperengineering/rentops/internal/documents"
	"github.com/hyperengineering/rentops/internal/events"
	"github.com/hyperengineering/rentops/internal/store"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/stretchr/testify/require"
)

var pdf = []byte("%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\n")

type harness struct {
	store   *store.SQLStore
	bus     *events.MemoryBus
	storage *documents.LocalStorage
	props   *PropertyService
	leads   *LeadService
	docs    *DocumentService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts PropertyOptions) *harness {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	storage, err := documents.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	logger := discardLogger()
	props := NewPropertyService(st, bus, storage, logger, opts)
	return &harness{
		store:   st,
		bus:     bus,
		storage: storage,
		props:   props,
		leads:   NewLeadService(st, props, bus, logger),
		docs:    NewDocumentService(st, props, storage, logger, 1<<20),
	}
}

func (h *harness) createProperty(t *testing.T, fields types.Fields) *PropertyDetail {
	t.Helper()
	d, err := h.props.Create(context.Background(), types.NewProperty{
		Address:    "Calle de Alcalá 12, 3ºB",
		City:       "Madrid",
		PostalCode: "28014",
		Fields:     fields,
	})
	require.NoError(t, err)
	return d
}

func (h *harness) uploadPDF(t *testing.T, propertyID, fieldKey string) *types.Document {
	t.Helper()
	doc, _, err := h.docs.Upload(context.Background(), Upload{
		PropertyID: propertyID,
		FieldKey:   fieldKey,
		Filename:   fieldKey + ".pdf",
		MimeType:   "application/pdf",
		Size:       int64(len(pdf)),
		Body:       bytes.NewReader(pdf),
	})
	require.NoError(t, err)
	return doc
}

func propertyData() types.Fields {
	return types.Fields{
		"property_type": "flat",
		"area_m2":       float64(84),
		"bedrooms":      float64(3),
		"bathrooms":     float64(2),
	}
}

func ownerData() types.Fields {
	return types.Fields{
		"owner_full_name": "Lucía Fernández Ruiz",
		"owner_email":     "lucia@example.com",
		"owner_phone":     "+34600111222",
		"owner_id_number": "12345678Z",
		"owner_iban":      "ES9121000418450200051332",
	}
}

// completeProphero fills every required section of the first phase.
func (h *harness) completeProphero(t *testing.T, id string) *PropertyDetail {
	t.Helper()
	ctx := context.Background()

	fields := propertyData()
	for k, v := range ownerData() {
		fields[k] = v
	}
	fields["cadastral_reference"] = "9872023VH5797S0001WX"
	_, err := h.props.PatchFields(ctx, id, fields)
	require.NoError(t, err)

	for _, key := range []string{"energy_certificate", "habitability_certificate", "land_registry_note"} {
		h.uploadPDF(t, id, key)
	}

	var detail *PropertyDetail
	for _, item := range []string{"photos_reviewed", "price_validated", "management_agreement_signed"} {
		detail, err = h.props.SetChecklistItem(ctx, id, types.PhaseProphero, "prophero_review", item, true)
		require.NoError(t, err)
	}
	return detail
}

func task(d *PropertyDetail, phase types.Phase, section string) *types.PropertyTask {
	for i := range d.Tasks {
		if d.Tasks[i].Phase == phase && d.Tasks[i].TaskType == section {
			return &d.Tasks[i]
		}
	}
	return nil
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Event{}
}
