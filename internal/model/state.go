package model

// AgentState is the liveness report sent to the controller.
type AgentState struct {
	Binary         string         `json:"binary"`
	Host           string         `json:"host"`
	Topic          string         `json:"topic"`
	AgentType      string         `json:"agent_type"`
	Configurations map[string]any `json:"configurations"`
	StartFlag      bool           `json:"start_flag,omitempty"`
}
