// Package capability resolves the authoritative tool list for an
// agent invocation: the union of what the manifest declared, what the
// agent's identity guarantees at minimum, and what the presence of
// dynamic artifact mounts demands.
package capability

import "strings"

const (
	ToolReadFile  = "read_file"
	ToolListFiles = "list_files"
	ToolWebSearch = "web_search"
	ToolCodeExec  = "code_execution"
	ToolFileWrite = "file_write"
)

// powerTools is the full set granted to master/orchestrator identities.
var powerTools = []string{ToolWebSearch, ToolCodeExec, ToolFileWrite}

// Resolve computes the authoritative tool list for agentID.
//
// declared is the manifest's explicit tools field (may be nil, empty,
// or populated — all three are meaningful: nil/empty still receive
// the identity minimum and read-only tools, populated entries are
// additive, never a ceiling). hasDynamicArtifacts indicates the
// invocation will mount files produced by parent agents, which forces
// code-execution regardless of identity.
func Resolve(agentID string, declared []string, hasDynamicArtifacts bool) []string {
	set := make(map[string]struct{}, len(declared)+5)
	for _, t := range declared {
		set[t] = struct{}{}
	}

	// Always-on read-only tools.
	set[ToolReadFile] = struct{}{}
	set[ToolListFiles] = struct{}{}

	// Identity-based union: every rule is additive, not a ranked
	// switch. A "master" id gets the power bundle in addition to
	// whatever the other substring rules would already have granted.
	id := strings.ToLower(agentID)

	if strings.Contains(id, "research") || strings.Contains(id, "web") {
		set[ToolWebSearch] = struct{}{}
	}
	if strings.Contains(id, "analy") || strings.Contains(id, "code") || strings.Contains(id, "math") {
		set[ToolCodeExec] = struct{}{}
	}
	if strings.Contains(id, "writ") || strings.Contains(id, "code") || strings.Contains(id, "log") {
		set[ToolFileWrite] = struct{}{}
	}
	if strings.HasPrefix(id, "master") || strings.HasPrefix(id, "orch") {
		for _, t := range powerTools {
			set[t] = struct{}{}
		}
	}

	if hasDynamicArtifacts {
		set[ToolCodeExec] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}
