package model

// WebSocket message types
const (
	WSMessageTypeStarted  = "started"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSGenerationMessage tells a dashboard that a project's report changed state.
type WSGenerationMessage struct {
	Type        string   `json:"type"`
	Email       string   `json:"email"`
	ProjectName string   `json:"projectName"`
	ReportName  string   `json:"reportName,omitempty"`
	Error       *WSError `json:"error,omitempty"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
