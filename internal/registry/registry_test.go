package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

func validDef(id string) *domain.IntakeDefinition {
	return &domain.IntakeDefinition{
		ID:      id,
		Version: "1.0.0",
		Schema: &domain.FieldSchema{
			Type:       "object",
			Properties: map[string]*domain.FieldSchema{"legal_name": {Type: "string"}},
		},
		Destination: &domain.Destination{URL: "https://hooks.example.com/vendors"},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validDef("vendor_onboarding")))

	def, err := r.Get("vendor_onboarding")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", def.Version)
	assert.True(t, r.Has("vendor_onboarding"))
	assert.False(t, r.Has("other"))
}

func TestGetMissingIsNotFound(t *testing.T) {
	_, err := New().Get("ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.IntakeDefinition)
	}{
		{"uppercase id", func(d *domain.IntakeDefinition) { d.ID = "VendorOnboarding" }},
		{"leading digit", func(d *domain.IntakeDefinition) { d.ID = "1vendor" }},
		{"hyphenated id", func(d *domain.IntakeDefinition) { d.ID = "vendor-onboarding" }},
		{"empty id", func(d *domain.IntakeDefinition) { d.ID = "" }},
		{"bad version", func(d *domain.IntakeDefinition) { d.Version = "one" }},
		{"missing schema", func(d *domain.IntakeDefinition) { d.Schema = nil }},
		{"missing destination", func(d *domain.IntakeDefinition) { d.Destination = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef("vendor_onboarding")
			tt.mutate(def)
			assert.Error(t, New().Register(def))
		})
	}
}

func TestListIDsSorted(t *testing.T) {
	r := New()
	for _, id := range []string{"zeta_form", "alpha_form", "mid_form"} {
		require.NoError(t, r.Register(validDef(id)))
	}
	assert.Equal(t, []string{"alpha_form", "mid_form", "zeta_form"}, r.ListIDs())
}
