package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

// contextFileName is where a test case's context is written inside a session workspace.
const contextFileName = "CONTEXT.md"

// WorkspaceFile is a file written into a session's working directory.
type WorkspaceFile struct {
	Path    string
	Content string
}

func contextFiles(tc models.TestCase) []WorkspaceFile {
	if strings.TrimSpace(tc.Context) == "" {
		return nil
	}
	return []WorkspaceFile{{Path: contextFileName, Content: tc.Context}}
}

// writeWorkspaceFiles writes files into workspaceDir, refusing paths that escape it.
func writeWorkspaceFiles(workspaceDir string, files []WorkspaceFile) error {
	baseWorkspace := filepath.Clean(workspaceDir)
	if workspaceDir == "" {
		return fmt.Errorf("workspace is not set")
	}

	baseWithSep := baseWorkspace + string(os.PathSeparator)

	for _, f := range files {
		if f.Path == "" {
			continue
		}

		relPath := filepath.Clean(f.Path)
		if filepath.IsAbs(relPath) {
			return fmt.Errorf("workspace file %q must be relative", f.Path)
		}

		fullPath := filepath.Clean(filepath.Join(baseWorkspace, relPath))
		if !strings.HasPrefix(fullPath+string(os.PathSeparator), baseWithSep) {
			return fmt.Errorf("workspace file %q escapes workspace", f.Path)
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return fmt.Errorf("creating directory for %q: %w", f.Path, err)
		}

		if err := os.WriteFile(fullPath, []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("writing %q: %w", f.Path, err)
		}
	}

	return nil
}
