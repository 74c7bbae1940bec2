package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory creates an unconnected transport.
type Factory func(*slog.Logger) Adapter

// Info describes a registered transport.
type Info struct {
	Name        string
	Description string
	// Network transports dial host:port; the others read Config.Path.
	Network bool
}

type entry struct {
	info    Info
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]entry)
)

// Register makes a transport available under info.Name. Transports call it
// from init(). Registering the same name twice panics.
func Register(info Info, factory Factory) {
	name := strings.ToLower(info.Name)
	if name == "" || factory == nil {
		panic("adapter: Register needs a name and a factory")
	}
	info.Name = name

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("adapter: transport %q registered twice", name))
	}
	registry[name] = entry{info: info, factory: factory}
}

// Lookup returns the transport registered under name (case-insensitive).
func Lookup(name string) (Info, Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[strings.ToLower(name)]
	return e.info, e.factory, ok
}

// IsRegistered reports whether a transport is available under name.
func IsRegistered(name string) bool {
	_, _, ok := Lookup(name)
	return ok
}

// Transports returns every registered transport sorted by name.
func Transports() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Info, 0, len(registry))
	for _, e := range registry {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAdapters returns the registered transport names, sorted.
func ListAdapters() []string {
	infos := Transports()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// NewAdapter creates the transport named by cfg.Type without connecting it.
// A nil logger discards output.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}
	_, factory, ok := Lookup(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// Open creates and connects the transport named by cfg.Type. The adapter
// is closed again when Connect fails.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Adapter, error) {
	adp, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := adp.Connect(ctx, cfg); err != nil {
		_ = adp.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", strings.ToLower(cfg.Type), err)
	}
	return adp, nil
}

// UnknownAdapterError is returned when a transport name is not registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: set target.type in changefeed.yaml or pass --adapter", e.Type, e.Available)
}
