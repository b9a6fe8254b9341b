package external

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/types"
)

func TestNormalizeProfile_ProviderShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Profile
	}{
		{
			name: "google shape",
			raw: map[string]any{
				"sub":   "108177572",
				"email": "ada@example.com",
				"name":  "Ada Lovelace",
			},
			want: Profile{ID: "108177572", Email: "ada@example.com", Name: "Ada Lovelace"},
		},
		{
			name: "github shape falls back to login",
			raw: map[string]any{
				"id":    "usr_9",
				"email": "dev@example.com",
				"login": "octo-dev",
			},
			want: Profile{ID: "usr_9", Email: "dev@example.com", Name: "octo-dev"},
		},
		{
			name: "nested name parts",
			raw: map[string]any{
				"sub":         "s1",
				"email":       "g@example.com",
				"given_name":  "Grace",
				"family_name": "Hopper",
			},
			want: Profile{ID: "s1", Email: "g@example.com", Name: "Grace Hopper"},
		},
		{
			name: "email is lowered and trimmed",
			raw: map[string]any{
				"sub":   "s1",
				"email": "  Mixed.Case@Example.COM ",
			},
			want: Profile{ID: "s1", Email: "mixed.case@example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeProfile(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeProfile_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		wantCode types.ErrorCode
	}{
		{
			name:     "no subject identifier",
			raw:      map[string]any{"email": "a@b.com"},
			wantCode: types.ErrCodeValidationMissingField,
		},
		{
			name:     "numeric id is not coerced",
			raw:      map[string]any{"id": float64(12345), "email": "a@b.com"},
			wantCode: types.ErrCodeValidationMissingField,
		},
		{
			name:     "no email",
			raw:      map[string]any{"sub": "s1", "name": "Ada"},
			wantCode: types.ErrCodeValidationInvalidEmail,
		},
		{
			name:     "email without at sign",
			raw:      map[string]any{"sub": "s1", "email": "not-an-address"},
			wantCode: types.ErrCodeValidationInvalidEmail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeProfile(tt.raw)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}
