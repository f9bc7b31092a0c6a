package users

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrNoMatch is returned when a username/password pair is not in the table.
var ErrNoMatch = errors.New("no matching credential")

// Credential is one entry of a credential table. Either Password (plain, for
// demos and tests) or PasswordHash (bcrypt) must be set.
type Credential struct {
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password,omitempty"`
	PasswordHash string   `yaml:"password_hash,omitempty"`
	ID           string   `yaml:"id,omitempty"`
	Email        string   `yaml:"email,omitempty"`
	DisplayName  string   `yaml:"display_name,omitempty"`
	Roles        []string `yaml:"roles,omitempty"`
}

func (c Credential) profile() Profile {
	email := c.Email
	if email == "" {
		email = c.Username
	}
	return Profile{
		ID:          c.ID,
		Email:       email,
		DisplayName: c.DisplayName,
		Roles:       NewRoles(c.Roles...),
	}
}

// CredentialTable validates usernames and passwords against a fixed list.
// Plain passwords are hashed on Add, so only bcrypt hashes are held in memory.
type CredentialTable struct {
	entries map[string]Credential // lower-cased username -> credential
	lock    sync.RWMutex
}

func NewCredentialTable() *CredentialTable {
	return &CredentialTable{
		entries: make(map[string]Credential),
	}
}

// Add inserts or replaces a credential.
func (ct *CredentialTable) Add(c Credential) error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("credential username is required")
	}
	if c.PasswordHash == "" {
		if c.Password == "" {
			return errors.New("credential password is required")
		}
		hash, err := HashPassword(c.Password)
		if err != nil {
			return err
		}
		c.PasswordHash = hash
	}
	c.Password = ""
	if c.ID == "" {
		c.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(c.Username))).String()
	}

	ct.lock.Lock()
	defer ct.lock.Unlock()
	ct.entries[strings.ToLower(c.Username)] = c
	return nil
}

// Verify returns the profile for username when password matches.
func (ct *CredentialTable) Verify(username, password string) (Profile, error) {
	ct.lock.RLock()
	c, ok := ct.entries[strings.ToLower(strings.TrimSpace(username))]
	ct.lock.RUnlock()

	if !ok || !CheckPasswordHash(password, c.PasswordHash) {
		return Profile{}, ErrNoMatch
	}
	return c.profile(), nil
}

// Len returns the number of credentials held.
func (ct *CredentialTable) Len() int {
	ct.lock.RLock()
	defer ct.lock.RUnlock()
	return len(ct.entries)
}

type credentialFile struct {
	Users []Credential `yaml:"users"`
}

// LoadCredentialTable reads a YAML file of the form
//
//	users:
//	  - username: demo@demo.com
//	    password_hash: $2a$10$...
//	    roles: [user]
func LoadCredentialTable(path string) (*CredentialTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	table := NewCredentialTable()
	for _, c := range f.Users {
		if err := table.Add(c); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// DemoCredentials returns the built-in demo account table.
func DemoCredentials() *CredentialTable {
	table := NewCredentialTable()
	_ = table.Add(Credential{
		Username:    "demo@demo.com",
		Password:    "demo123",
		DisplayName: "Demo User",
		Roles:       []string{"user"},
	})
	return table
}
