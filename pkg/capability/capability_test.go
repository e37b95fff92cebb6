package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_AlwaysIncludesReadOnlyTools(t *testing.T) {
	tools := Resolve("plain-agent", nil, false)
	assert.Contains(t, tools, ToolReadFile)
	assert.Contains(t, tools, ToolListFiles)
}

func TestResolve_IdentitySubstrings(t *testing.T) {
	assert.Contains(t, Resolve("web-researcher", nil, false), ToolWebSearch)
	assert.Contains(t, Resolve("data-analyst", nil, false), ToolCodeExec)
	assert.Contains(t, Resolve("report-writer", nil, false), ToolFileWrite)
}

func TestResolve_MasterPrefixGrantsAllPowerTools(t *testing.T) {
	tools := Resolve("master-controller", nil, false)
	assert.Contains(t, tools, ToolWebSearch)
	assert.Contains(t, tools, ToolCodeExec)
	assert.Contains(t, tools, ToolFileWrite)
}

func TestResolve_DynamicArtifactsForceCodeExec(t *testing.T) {
	tools := Resolve("plain-observer", nil, true)
	assert.Contains(t, tools, ToolCodeExec)
}

func TestResolve_ManifestDeclaredToolsAreAdditive(t *testing.T) {
	tools := Resolve("plain-agent", []string{"custom_tool"}, false)
	assert.Contains(t, tools, "custom_tool")
	assert.Contains(t, tools, ToolReadFile)
}
