// Package config defines the manifest and server configuration types
// and the koanf-backed loader that hydrates them from file, Consul, or
// etcd sources.
package config

import "fmt"

// Role is an agent node's position in the delegation hierarchy.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleWorker       Role = "worker"
	RoleObserver     Role = "observer"
)

// ModelVariant selects the LLM adapter's model tag for an invocation.
type ModelVariant string

const (
	ModelFast      ModelVariant = "fast"
	ModelReasoning ModelVariant = "reasoning"
	ModelThinking  ModelVariant = "thinking"
)

// CachePolicy controls whether an agent's invocations participate in
// context caching.
type CachePolicy string

const (
	CachePolicyLocal  CachePolicy = "local"
	CachePolicyGlobal CachePolicy = "global"
	CachePolicyOff    CachePolicy = "off"
)

// Position is an opaque 2-D coordinate used only by the UI; the
// runtime never interprets it.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// AgentNodeConfig describes one agent node of a workflow manifest.
type AgentNodeConfig struct {
	ID     string       `yaml:"id" json:"id"`
	Role   Role         `yaml:"role" json:"role"`
	Model  ModelVariant `yaml:"model" json:"model"`
	Tools  []string     `yaml:"tools" json:"tools"`
	Prompt string       `yaml:"prompt" json:"prompt"`

	// UserDirective carries runtime task text. Only populated when
	// AcceptsDirective is true, in which case the operator's
	// command-line input is routed here before dispatch.
	UserDirective string `yaml:"user_directive,omitempty" json:"user_directive,omitempty"`

	// DependsOn is an ordered set of parent node IDs; order is
	// semantically meaningful for parent-signature selection (§4.6).
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	AcceptsDirective bool        `yaml:"accepts_directive" json:"accepts_directive"`
	AllowDelegation  bool        `yaml:"allow_delegation" json:"allow_delegation"`
	CachePolicy      CachePolicy `yaml:"cache_policy" json:"cache_policy"`
	Position         *Position   `yaml:"position,omitempty" json:"position,omitempty"`
}

// SetDefaults fills in zero-valued fields with the runtime's defaults.
func (a *AgentNodeConfig) SetDefaults() {
	if a.Role == "" {
		a.Role = RoleWorker
	}
	if a.Model == "" {
		a.Model = ModelFast
	}
	if a.CachePolicy == "" {
		a.CachePolicy = CachePolicyOff
	}
	if a.Tools == nil {
		a.Tools = []string{}
	}
}

// Validate checks the node is well-formed in isolation (cross-node
// checks — dangling depends_on, cycles — belong to the DAG Store once
// the manifest is loaded into a run).
func (a *AgentNodeConfig) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("config: agent node missing id")
	}
	switch a.Role {
	case RoleOrchestrator, RoleWorker, RoleObserver:
	default:
		return fmt.Errorf("config: agent %q has invalid role %q", a.ID, a.Role)
	}
	switch a.CachePolicy {
	case CachePolicyLocal, CachePolicyGlobal, CachePolicyOff:
	default:
		return fmt.Errorf("config: agent %q has invalid cache_policy %q", a.ID, a.CachePolicy)
	}
	if a.Prompt == "" {
		return fmt.Errorf("config: agent %q missing prompt", a.ID)
	}
	return nil
}

// WorkflowManifest is the operator-submitted description of a run: an
// ordered list of agent nodes plus an optional set of attached file
// names resolved against the submitter's library/public pool.
type WorkflowManifest struct {
	ID            string            `yaml:"id" json:"id"`
	Agents        []AgentNodeConfig `yaml:"agents" json:"agents"`
	AttachedFiles []string          `yaml:"attached_files,omitempty" json:"attached_files,omitempty"`
}

// SetDefaults applies AgentNodeConfig.SetDefaults to every node.
func (w *WorkflowManifest) SetDefaults() {
	for i := range w.Agents {
		w.Agents[i].SetDefaults()
	}
}

// Validate validates the manifest shape and every node, and rejects
// duplicate node ids (the DAG Store assumes uniqueness).
func (w *WorkflowManifest) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("config: manifest missing id")
	}
	if len(w.Agents) == 0 {
		return fmt.Errorf("config: manifest %q has no agents", w.ID)
	}
	seen := make(map[string]struct{}, len(w.Agents))
	for i := range w.Agents {
		if err := w.Agents[i].Validate(); err != nil {
			return err
		}
		id := w.Agents[i].ID
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: manifest %q has duplicate agent id %q", w.ID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ApprovalPolicy names how a paused run is to be approved: "manual"
// (an explicit operator approve/reject call) or "auto". The value is
// defaulted and validated here, but no kernel component reads it: a
// run paused by the Circuit Breaker always waits for an explicit
// resume, approve, or reject call, whichever policy is configured.
type ApprovalPolicy string

const (
	ApprovalPolicyManual ApprovalPolicy = "manual"
	ApprovalPolicyAuto   ApprovalPolicy = "auto"
)

// ServerConfig is the kernel's own operating configuration: listen
// address, storage root, persistence backend address, and approval
// policy. This is the ambient counterpart to WorkflowManifest, which
// describes a single run rather than the kernel process.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	StorageRoot string `yaml:"storage_root" json:"storage_root"`

	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`

	// AdapterURL is the base URL of the out-of-scope LLM adapter
	// service (§6.1) the scheduler dispatches every invocation to.
	AdapterURL string `yaml:"adapter_url" json:"adapter_url"`

	ApprovalPolicy ApprovalPolicy `yaml:"approval_policy" json:"approval_policy"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// MetricsAddr, if set, serves Prometheus metrics on its own
	// listener separate from the main API surface.
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// SetDefaults fills in the kernel's operating defaults.
func (s *ServerConfig) SetDefaults() {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8090
	}
	if s.StorageRoot == "" {
		s.StorageRoot = "./data"
	}
	if s.AdapterURL == "" {
		s.AdapterURL = "http://localhost:9100"
	}
	if s.ApprovalPolicy == "" {
		s.ApprovalPolicy = ApprovalPolicyManual
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "simple"
	}
}

// Validate checks the server configuration is well-formed.
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", s.Port)
	}
	switch s.ApprovalPolicy {
	case ApprovalPolicyManual, ApprovalPolicyAuto:
	default:
		return fmt.Errorf("config: invalid approval_policy %q", s.ApprovalPolicy)
	}
	return nil
}
