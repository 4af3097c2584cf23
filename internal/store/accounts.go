// File: internal/store/accounts.go
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Credential is one harvested, reusable authenticated session. Created only
// on a fully successful signup attempt and never mutated afterward.
type Credential struct {
	// ID is the mailbox address the account was registered with.
	ID           string `json:"id"`
	SessionIndex string `json:"csesidx"`
	ConfigID     string `json:"config_id"`
	// SessionSecret holds the __Secure-C_SES cookie value.
	SessionSecret string `json:"secure_c_ses"`
	// HostSecret holds the __Host-C_OSES cookie value.
	HostSecret string `json:"host_c_oses"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// Accounts persists credentials as a single JSON array file. Each save reads
// the file fully, appends in memory and rewrites it. Not designed for
// concurrent writers across processes; in-process callers are serialized.
type Accounts struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewAccounts opens (lazily) the credential file at path.
func NewAccounts(path string, logger *zap.Logger) *Accounts {
	return &Accounts{path: path, log: logger.Named("store")}
}

// Append adds one credential to the file.
func (a *Accounts) Append(cred Credential) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	creds, err := a.load()
	if err != nil {
		return err
	}
	creds = append(creds, cred)

	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}

	a.log.Info("Credential persisted",
		zap.String("id", cred.ID),
		zap.Int("total", len(creds)))
	return nil
}

// All returns every stored credential. A missing file is an empty store.
func (a *Accounts) All() ([]Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load()
}

func (a *Accounts) load() ([]Credential, error) {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var creds []Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode credential store %s: %w", a.path, err)
	}
	return creds, nil
}
