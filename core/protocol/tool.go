package protocol

// Tool describes a capability the model may request. Parameters is the
// JSON Schema of the tool's argument object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
