package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// BackendType selects where the Loader reads the server manifest from.
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendConsul BackendType = "consul"
	BackendEtcd   BackendType = "etcd"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type BackendType

	// Path is a filesystem path (BackendFile) or a KV key/prefix
	// (BackendConsul, BackendEtcd).
	Path string

	// Endpoints lists backend addresses; defaults are applied per
	// backend when empty.
	Endpoints []string

	// Watch, when true, starts a background goroutine that reloads on
	// every upstream change and invokes OnChange.
	Watch bool

	OnChange func(*ServerConfig) error
}

// Loader wraps a koanf instance configured for one of the supported
// backends.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader constructs a Loader. Path is required; Type defaults to
// BackendFile.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = BackendFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config: loader path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case BackendConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case BackendEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the backend once, unmarshals into a ServerConfig, applies
// defaults, validates, and — if Watch is set — starts a background
// watcher that repeats this on every upstream change.
func (l *Loader) Load() (*ServerConfig, error) {
	provider, parser, err := l.providerFor(l.options.Type)
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("config: load from %s: %w", l.options.Type, err)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider, parser)
	}

	return cfg, nil
}

func (l *Loader) providerFor(t BackendType) (koanf.Provider, koanf.Parser, error) {
	switch t {
	case BackendFile:
		return file.Provider(l.options.Path), l.parser, nil

	case BackendConsul:
		consulCfg := api.DefaultConfig()
		consulCfg.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{
			Cfg: consulCfg,
			Key: l.options.Path,
		}), nil, nil

	case BackendEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil, nil

	default:
		return nil, nil, fmt.Errorf("config: unsupported backend %q", t)
	}
}

func (l *Loader) unmarshal() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := l.koanf.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// watcher is the interface koanf's consul/etcd providers satisfy.
type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider, parser koanf.Parser) {
	if l.options.Type == BackendFile {
		l.watchFile(provider, parser)
		return
	}

	w, ok := provider.(watcher)
	if !ok {
		slog.Warn("config provider does not support watching", "backend", l.options.Type)
		return
	}

	err := w.Watch(func(_ interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if err != nil {
			slog.Warn("config watch error", "error", err)
			return
		}
		l.reload(provider, parser)
	})
	if err != nil {
		slog.Warn("config watch setup failed", "backend", l.options.Type, "error", err)
	}
}

// watchFile polls filesystem change notifications directly via
// fsnotify, since koanf's file provider has no built-in Watch: the
// directory containing the config path is watched (not the file
// itself, since editors commonly replace a file via rename rather
// than in-place write) and changes are debounced to coalesce the
// burst of events one save can produce.
func (l *Loader) watchFile(provider koanf.Provider, parser koanf.Parser) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config file watcher setup failed", "error", err)
		return
	}
	defer fw.Close()

	dir := filepath.Dir(l.options.Path)
	name := filepath.Base(l.options.Path)
	if err := fw.Add(dir); err != nil {
		slog.Warn("config file watch failed", "dir", dir, "error", err)
		return
	}

	const debounce = 150 * time.Millisecond
	var timer *time.Timer
	fire := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() { l.reload(provider, parser) })
	}

	for {
		select {
		case <-l.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fire()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config file watcher error", "error", err)
		}
	}
}

func (l *Loader) reload(provider koanf.Provider, parser koanf.Parser) {
	if err := l.koanf.Load(provider, parser); err != nil {
		slog.Warn("config reload failed", "error", err)
		return
	}
	cfg, err := l.unmarshal()
	if err != nil {
		slog.Warn("config reload produced invalid config", "error", err)
		return
	}
	if l.options.OnChange != nil {
		if err := l.options.OnChange(cfg); err != nil {
			slog.Warn("config change callback failed", "error", err)
		}
	}
}

// Stop ends any active watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// LoadManifestFile reads and validates a WorkflowManifest from a YAML
// file. Manifests are always file-sourced (submitted per run), unlike
// ServerConfig which may come from a coordination backend.
func LoadManifestFile(path string) (*WorkflowManifest, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load manifest %s: %w", path, err)
	}
	var m WorkflowManifest
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("config: unmarshal manifest: %w", err)
	}
	m.SetDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
