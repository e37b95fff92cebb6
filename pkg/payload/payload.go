// Package payload assembles the request a ready agent invocation sends
// to the LLM adapter: parent context, system/user prompt split,
// dynamic file mounts, and the resolved capability and cache state.
package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raro-systems/raro/pkg/cachereg"
	"github.com/raro-systems/raro/pkg/capability"
	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/dag"
	"github.com/raro-systems/raro/pkg/graphview"
	"github.com/raro-systems/raro/pkg/signature"
	"github.com/raro-systems/raro/pkg/state"
	"github.com/raro-systems/raro/pkg/storage"
)

var ErrAgentNotFound = errors.New("payload: agent not found")

// anti-duplication notice appended to the system prompt when the
// resolved capability set includes file-write, so the agent does not
// echo file contents back as prose.
const fileWriteNotice = "Do not emit file contents in text; use the tool once, terse prose only."

const contextAppendixLabel = "[OPERATIONAL CONTEXT]"

// ArtifactFetcher is the seam to the Persistence Layer, declared here
// to avoid an import cycle (pkg/persistence depends on pkg/state, not
// the other way; payload depends on both independently).
type ArtifactFetcher interface {
	FetchArtifact(ctx context.Context, runID, agentID string) (json.RawMessage, bool, error)
}

// parentArtifact mirrors the subset of a stored artifact this builder
// reads: a human-readable result/output field and any files the
// producing agent generated.
type parentArtifact struct {
	Result         string   `json:"result,omitempty"`
	Output         string   `json:"output,omitempty"`
	FilesGenerated []string `json:"files_generated,omitempty"`
}

// Payload is everything the LLM adapter client needs to dispatch one
// invocation.
type Payload struct {
	RunID            string
	AgentID          string
	Model            config.ModelVariant
	SystemPrompt     string
	UserDirective    string
	StructuredInput  map[string]json.RawMessage
	ParentSignature  string
	CacheHandle      string
	ThinkingDepth    string
	FilePaths        []string
	Tools            []string
	AllowDelegation  bool
	GraphView        string
	ContextAppendix  string // exposed for the drought guard; not sent on the wire separately
	HasGeneratedFile bool
	HasParents       bool
}

// Builder wires together the stores needed to assemble a Payload.
type Builder struct {
	graph      *dag.Graph
	stateStore *state.Store
	signatures *signature.Store
	cacheReg   *cachereg.Registry
	artifacts  ArtifactFetcher
	layout     *storage.Layout
}

// NewBuilder constructs a Builder. artifacts may be nil if persistence
// is disabled, in which case parent artifacts are treated as absent.
func NewBuilder(graph *dag.Graph, stateStore *state.Store, signatures *signature.Store, cacheReg *cachereg.Registry, artifacts ArtifactFetcher, layout *storage.Layout) *Builder {
	return &Builder{
		graph:      graph,
		stateStore: stateStore,
		signatures: signatures,
		cacheReg:   cacheReg,
		artifacts:  artifacts,
		layout:     layout,
	}
}

// Build assembles the payload for runID and node, which the caller has
// already looked up (Build itself never returns ErrAgentNotFound).
// nodesByID is the run's current node set for the graph view, which is
// rendered in detailed mode when node.AllowDelegation is set.
func (b *Builder) Build(ctx context.Context, runID string, node config.AgentNodeConfig, nodesByID map[string]config.AgentNodeConfig) (*Payload, error) {
	// Manifest-declared parent order drives signature selection and
	// context assembly. A node spliced in by delegation may declare no
	// dependencies of its own while the graph wires it under its
	// delegator; the DAG's parents fill in for those.
	parents := node.DependsOn
	if len(parents) == 0 {
		parents = b.graph.GetDependencies(node.ID)
	}

	st, err := b.stateStore.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("payload: load run state: %w", err)
	}

	parentSig, _ := b.signatures.FirstAvailable(runID, parents)

	structuredInput := make(map[string]json.RawMessage)
	var appendixParts []string
	var dynamicMounts []string

	if b.artifacts != nil {
		for _, parentID := range parents {
			raw, found, err := b.artifacts.FetchArtifact(ctx, runID, parentID)
			if err != nil {
				return nil, fmt.Errorf("payload: fetch artifact for parent %q: %w", parentID, err)
			}
			if !found {
				continue
			}
			structuredInput[parentID] = raw

			var art parentArtifact
			if err := json.Unmarshal(raw, &art); err == nil {
				text := art.Result
				if text == "" {
					text = art.Output
				}
				if text != "" {
					appendixParts = append(appendixParts, fmt.Sprintf("[From %s]\n%s", parentID, text))
				}
				for _, f := range art.FilesGenerated {
					dynamicMounts = append(dynamicMounts, b.layout.ResolveGeneratedFile(runID, f))
				}
			}
		}
	}

	contextAppendix := strings.Join(appendixParts, "\n\n")

	tools := capability.Resolve(node.ID, node.Tools, len(dynamicMounts) > 0)

	systemPrompt := node.Prompt
	if containsTool(tools, capability.ToolFileWrite) {
		systemPrompt = strings.TrimRight(systemPrompt, "\n") + "\n\n" + fileWriteNotice
	}

	userDirective := node.UserDirective
	if contextAppendix != "" {
		userDirective = fmt.Sprintf("%s\n%s", contextAppendixLabel+"\n"+contextAppendix, userDirective)
	}

	cacheHandle, _ := b.cacheReg.Get(runID)

	view := graphview.Render(b.graph, st, nodesByID, node.ID, node.AllowDelegation)

	var thinkingDepth string
	if node.Model == config.ModelThinking {
		thinkingDepth = "deep"
	}

	// Session input files (staged at run start) come first, dynamic
	// mounts from parent outputs after.
	filePaths := append(b.layout.SessionInputFiles(runID), dynamicMounts...)

	return &Payload{
		RunID:            runID,
		AgentID:          node.ID,
		Model:            node.Model,
		SystemPrompt:     systemPrompt,
		UserDirective:    userDirective,
		StructuredInput:  structuredInput,
		ParentSignature:  parentSig,
		CacheHandle:      cacheHandle,
		ThinkingDepth:    thinkingDepth,
		FilePaths:        filePaths,
		Tools:            tools,
		AllowDelegation:  node.AllowDelegation,
		GraphView:        view,
		ContextAppendix:  contextAppendix,
		HasGeneratedFile: len(dynamicMounts) > 0,
		HasParents:       len(parents) > 0,
	}, nil
}

func containsTool(tools []string, want string) bool {
	for _, t := range tools {
		if t == want {
			return true
		}
	}
	return false
}

// nullStatusMarker is the sentinel an upstream agent's result carries
// to indicate it produced no usable output.
const nullStatusMarker = "[STATUS: NULL]"

// IsContextDrought reports whether p represents a context-starved
// invocation: the agent has parents, and the assembled context is
// either empty or contains the null-status marker, with no generated
// files to compensate. The scheduler enforces this before dispatch.
func IsContextDrought(hasParents bool, p *Payload) bool {
	if !hasParents {
		return false
	}
	if p.HasGeneratedFile {
		return false
	}
	trimmed := strings.TrimSpace(p.ContextAppendix)
	return trimmed == "" || strings.Contains(trimmed, nullStatusMarker)
}
