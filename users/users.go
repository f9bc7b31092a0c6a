package users

import (
	"encoding/json"
	"sort"

	"golang.org/x/crypto/bcrypt"
)

// Roles is a set of role names.
type Roles map[string]struct{}

// NewRoles builds a role set from names, ignoring blanks and duplicates.
func NewRoles(names ...string) Roles {
	r := make(Roles, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		r[n] = struct{}{}
	}
	return r
}

func (r Roles) Has(role string) bool {
	_, ok := r[role]
	return ok
}

// List returns the roles sorted, so encodings are stable.
func (r Roles) List() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r Roles) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.List())
}

func (r *Roles) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*r = NewRoles(names...)
	return nil
}

// Profile is the identity a provider issues on sign-in. It is never edited in
// place; re-authentication replaces it wholesale.
type Profile struct {
	ID          string `json:"id"`                    // Stable user identifier
	Email       string `json:"email"`                 // User's email address
	DisplayName string `json:"displayName,omitempty"` // Name shown in the UI
	Roles       Roles  `json:"roles"`                 // Granted roles
}

// HasRole reports whether the profile carries role.
func (p Profile) HasRole(role string) bool {
	return p.Roles.Has(role)
}

// Clone returns a deep copy so callers cannot mutate a shared role set.
func (p Profile) Clone() Profile {
	c := p
	c.Roles = NewRoles(p.Roles.List()...)
	return c
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
