package model

// WebSocket message types
const (
	WSMessageTypeTask  = "task"
	WSMessageTypeError = "error"
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSTaskMessage carries a task snapshot after a pipeline milestone.
type WSTaskMessage struct {
	Type string `json:"type"`
	Task Task   `json:"task"`
}

// WSErrorMessage represents a pipeline failure for one task
type WSErrorMessage struct {
	Type   string  `json:"type"`
	TaskID string  `json:"taskId"`
	Error  WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
