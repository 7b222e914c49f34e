package model

// Phase is one step of the circular mission timeline.
type Phase struct {
	Name     string `json:"name" yaml:"name"`
	IsActive bool   `json:"isActive" yaml:"isActive"`
	Progress int    `json:"progress" yaml:"progress"`
}

// Snapshot is the start-up state handed to the engine once.
//
// Tasks maps an entity ID to its ordered task rotation. IDs without an
// entry rotate through DefaultTaskList.
type Snapshot struct {
	Entities []Entity            `json:"entities" yaml:"entities"`
	Phases   []Phase             `json:"phases" yaml:"phases"`
	Tasks    map[string][]string `json:"tasks" yaml:"tasks"`
}
