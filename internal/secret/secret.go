// Package secret resolves credentials from configuration values and masks
// them before they reach logs.
//
// A configured value is either a literal, a string with ${VAR} references
// expanded from the environment, or "keyring:<name>", which reads the named
// item from the OS credential store.
package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName namespaces items in the OS credential store.
const ServiceName = "changefeed"

// KeyringPrefix marks a value to be read from the credential store.
const KeyringPrefix = "keyring:"

// ErrNotFound is returned when a keyring item does not exist.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes named secrets.
type Store interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// KeyringStore is a Store over a 99designs keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an open keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// OpenKeyring opens the OS credential store. With no backends given, the
// library picks the platform default.
func OpenKeyring(backends ...keyring.BackendType) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: backends,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// Get implements Store.
func (s *KeyringStore) Get(name string) (string, error) {
	item, err := s.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", name, err)
	}
	return string(item.Data), nil
}

// Set implements Store.
func (s *KeyringStore) Set(name, value string) error {
	if err := s.ring.Set(keyring.Item{Key: name, Data: []byte(value), Label: ServiceName + " " + name}); err != nil {
		return fmt.Errorf("failed to write %s to keyring: %w", name, err)
	}
	return nil
}

// Resolver expands configuration values. The keyring is opened on first use
// so configurations without keyring references never touch it.
type Resolver struct {
	open      func() (Store, error)
	lookupEnv func(string) (string, bool)

	once  sync.Once
	store Store
	err   error
}

// NewResolver creates a resolver backed by the OS keyring and process
// environment.
func NewResolver() *Resolver {
	return &Resolver{
		open:      func() (Store, error) { return OpenKeyring() },
		lookupEnv: os.LookupEnv,
	}
}

// NewResolverWith creates a resolver over the given store and environment
// lookup. A nil lookupEnv means os.LookupEnv.
func NewResolverWith(store Store, lookupEnv func(string) (string, bool)) *Resolver {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Resolver{
		open:      func() (Store, error) { return store, nil },
		lookupEnv: lookupEnv,
	}
}

// Resolve returns the effective value of a configured string.
func (r *Resolver) Resolve(value string) (string, error) {
	if name, ok := strings.CutPrefix(value, KeyringPrefix); ok {
		if name == "" {
			return "", fmt.Errorf("keyring reference has no item name")
		}
		store, err := r.openStore()
		if err != nil {
			return "", err
		}
		return store.Get(name)
	}

	var missing []string
	out := os.Expand(value, func(name string) string {
		v, ok := r.lookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}

func (r *Resolver) openStore() (Store, error) {
	r.once.Do(func() {
		r.store, r.err = r.open()
	})
	return r.store, r.err
}
