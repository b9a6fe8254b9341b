package external

import (
	"strings"

	"notekeeper/internal/types"
)

// Profile is the canonical identity record produced from an external
// provider's user-info payload. Everything past this boundary sees only
// these three fields; the scheduler core never touches provider shapes.
type Profile struct {
	ID    string
	Email string
	Name  string
}

// Provider payloads are not uniform: Google uses "sub"/"email"/"name",
// GitHub-style providers use "id"/"email" with "name" or "login", and some
// gateways re-wrap these under their own keys. The fallback orders below
// cover the shapes seen in the wild; first non-empty wins.
var (
	profileIDKeys    = []string{"sub", "id", "user_id", "userId"}
	profileEmailKeys = []string{"email", "mail", "emailAddress", "email_address"}
	profileNameKeys  = []string{"name", "displayName", "display_name", "login", "username"}
)

// NormalizeProfile maps a provider's variant user-info shape into a
// canonical Profile. A profile without a usable email address is rejected:
// reminders are delivered by email, so an account without one cannot be
// provisioned.
func NormalizeProfile(raw map[string]any) (Profile, error) {
	p := Profile{
		ID:    firstString(raw, profileIDKeys),
		Email: strings.ToLower(strings.TrimSpace(firstString(raw, profileEmailKeys))),
		Name:  firstString(raw, profileNameKeys),
	}

	// Some providers nest the name parts instead of sending a display name.
	if p.Name == "" {
		given := firstString(raw, []string{"given_name", "firstName", "first_name"})
		family := firstString(raw, []string{"family_name", "lastName", "last_name"})
		p.Name = strings.TrimSpace(given + " " + family)
	}

	if p.ID == "" {
		return Profile{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"identity profile has no subject identifier",
			nil,
		)
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return Profile{}, types.NewAppError(
			types.ErrCodeValidationInvalidEmail,
			"identity profile has no usable email address",
			nil,
		)
	}

	return p, nil
}

// firstString returns the first non-empty string value among the given keys.
// Numeric ids (GitHub sends them as JSON numbers) are not coerced; providers
// that matter here all send string subjects.
func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
