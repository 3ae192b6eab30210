package workspace

import "github.com/hibiscusapp/hibiscus/pkg/tree"

// SchemaVersion is written into every descriptor this build produces.
const SchemaVersion = "1.0"

const (
	// DirName is the hidden per-workspace metadata directory.
	DirName = ".hibiscus"

	// DescriptorName is the workspace descriptor file inside DirName.
	DescriptorName = "workspace.json"
)

// File is the persisted workspace descriptor: metadata, the last-known
// tree, and session state. The tree stored here is a convenience snapshot;
// on load it is always replaced by a fresh filesystem scan.
type File struct {
	SchemaVersion string                 `json:"schema_version"`
	Workspace     Info                   `json:"workspace"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
	Tree          []tree.Node            `json:"tree"`
	Session       *SessionState          `json:"session,omitempty"`
}

// Info identifies a workspace.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Root      string `json:"root"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// SessionState records which nodes were open and active, so a workspace
// reopens where the user left off.
type SessionState struct {
	OpenNodes  []string               `json:"open_nodes,omitempty"`
	ActiveNode string                 `json:"active_node,omitempty"`
	Cursor     map[string]interface{} `json:"cursor,omitempty"`
}
