package workflow

import (
	"testing"
)

func field(t *testing.T, key string) Field {
	t.Helper()
	ref, ok := FieldByKey(key)
	if !ok {
		t.Fatalf("field %q not found", key)
	}
	return ref.Field
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   any
		wantErr bool
	}{
		{"nil clears", "monthly_rent", nil, false},
		{"number", "monthly_rent", 950.0, false},
		{"number rule", "monthly_rent", 0.0, true},
		{"number wrong type", "monthly_rent", "950", true},
		{"integer", "bedrooms", 3.0, false},
		{"integer fraction", "bedrooms", 2.5, true},
		{"integer range", "deposit_months", 12.0, true},
		{"bool", "has_elevator", true, false},
		{"bool wrong type", "has_elevator", "yes", true},
		{"date", "available_from", "2026-11-01", false},
		{"date bad", "available_from", "1 nov 2026", true},
		{"blank clears", "available_from", "", false},
		{"enum", "property_type", "flat", false},
		{"enum bad", "property_type", "castle", true},
		{"email", "owner_email", "marta@example.com", false},
		{"email bad", "owner_email", "marta", true},
		{"url", "listing_url", "https://www.idealista.com/inmueble/123/", false},
		{"url bad", "listing_url", "idealista", true},
		{"phone", "tenant_phone", "+34 600 111 222", false},
		{"phone short", "tenant_phone", "600", true},
		{"text rule", "cadastral_reference", "9872023VH5797S0001WX", false},
		{"text rule bad", "cadastral_reference", "9872023", true},
		{"month rule", "ipc_reference_month", "2026-09", false},
		{"month rule bad", "ipc_reference_month", "09/2026", true},
		{"null byte", "owner_full_name", "Marta\x00", true},
		{"string for text wrong type", "owner_full_name", 12.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(field(t, tt.field), tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateValue(%s, %v) = %v, wantErr %v", tt.field, tt.value, err, tt.wantErr)
			}
			if err != nil && err.Field != tt.field {
				t.Errorf("err.Field = %q, want %q", err.Field, tt.field)
			}
		})
	}
}
