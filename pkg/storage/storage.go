// Package storage resolves the kernel's on-disk file regions: the
// shared/per-client library pools submitted manifests attach files
// from, each run's session input/output workspace, and the
// per-client/per-run artifact directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves paths rooted at a single storage root directory.
type Layout struct {
	root string
}

// New returns a Layout rooted at root.
func New(root string) *Layout {
	return &Layout{root: root}
}

// LibraryPublic is the shared attached-file pool visible to every
// client.
func (l *Layout) LibraryPublic() string {
	return filepath.Join(l.root, "library", "public")
}

// LibraryClient is clientID's private attached-file pool.
func (l *Layout) LibraryClient(clientID string) string {
	return filepath.Join(l.root, "library", clientID)
}

// SessionInput is the directory a run's input files (attached files,
// resolved from the library pools) are staged into.
func (l *Layout) SessionInput(runID string) string {
	return filepath.Join(l.root, "sessions", runID, "input")
}

// SessionOutput is the directory agents write generated files into
// during a run; these become dynamic file mounts for child
// invocations.
func (l *Layout) SessionOutput(runID string) string {
	return filepath.Join(l.root, "sessions", runID, "output")
}

// Artifacts is the directory promoted, run-complete artifacts live in
// for clientID's runID.
func (l *Layout) Artifacts(clientID, runID string) string {
	return filepath.Join(l.root, "artifacts", clientID, runID)
}

// EnsureRunDirs creates the session input/output and artifact
// directories for a new run, idempotently.
func (l *Layout) EnsureRunDirs(clientID, runID string) error {
	for _, dir := range []string{
		l.SessionInput(runID),
		l.SessionOutput(runID),
		l.Artifacts(clientID, runID),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return nil
}

// ResolveGeneratedFile maps a file name reported in an agent's
// files_generated artifact field to its absolute path under the run's
// session output directory, for mounting into a child invocation.
func (l *Layout) ResolveGeneratedFile(runID, name string) string {
	return filepath.Join(l.SessionOutput(runID), filepath.Base(name))
}

// ResolveLibraryFile resolves an attached file name against the
// client's private pool first, falling back to the public pool, and
// returns the absolute path plus whether it was found in either.
func (l *Layout) ResolveLibraryFile(clientID, name string) (string, bool) {
	name = filepath.Base(name)
	clientPath := filepath.Join(l.LibraryClient(clientID), name)
	if _, err := os.Stat(clientPath); err == nil {
		return clientPath, true
	}
	publicPath := filepath.Join(l.LibraryPublic(), name)
	if _, err := os.Stat(publicPath); err == nil {
		return publicPath, true
	}
	return "", false
}

// StageInputs copies each named attached file out of the submitter's
// library (private pool first, public fallback) into the run's session
// input directory, returning the staged absolute paths. A name that
// resolves in neither pool is an error: the manifest referenced a file
// that does not exist.
func (l *Layout) StageInputs(clientID, runID string, names []string) ([]string, error) {
	staged := make([]string, 0, len(names))
	for _, name := range names {
		src, ok := l.ResolveLibraryFile(clientID, name)
		if !ok {
			return nil, fmt.Errorf("storage: attached file %q not found in library", name)
		}
		dst := filepath.Join(l.SessionInput(runID), filepath.Base(name))
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("storage: read attached file %s: %w", src, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return nil, fmt.Errorf("storage: stage attached file %s: %w", dst, err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// SessionInputFiles lists the absolute paths of every file staged into
// the run's session input directory. A missing directory (no inputs
// were staged) yields an empty list.
func (l *Layout) SessionInputFiles(runID string) []string {
	dir := l.SessionInput(runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out
}
