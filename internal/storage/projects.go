package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ashita-ai/archdoc/internal/model"
)

// ProjectsKey is the single key the project list is stored under.
const ProjectsKey = "design_projects"

// The stored value is the JSON-encoded project list with no schema version;
// it is trusted to match the running code's shape.

func decodeProjects(raw []byte) ([]model.Project, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var projects []model.Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, fmt.Errorf("storage: decode projects: %w", err)
	}
	return projects, nil
}

func encodeProjects(projects []model.Project) ([]byte, error) {
	if projects == nil {
		projects = []model.Project{}
	}
	raw, err := json.Marshal(projects)
	if err != nil {
		return nil, fmt.Errorf("storage: encode projects: %w", err)
	}
	return raw, nil
}
