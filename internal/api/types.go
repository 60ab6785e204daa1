package api

// ErrorResp is the JSON error body returned by all endpoints.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// Capability describes what this agent consumes and produces.
type Capability struct {
	AgentName string   `json:"agent_name"`
	Mode      string   `json:"mode"`
	Consumes  []string `json:"consumes"`
	Produces  []string `json:"produces"`
}
