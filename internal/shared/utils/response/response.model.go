package response

import "time"

// StandardApiResponse is the envelope every endpoint answers with. ServerTime
// lets clients correct their countdown displays for clock skew.
type StandardApiResponse struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"` // error kind or validation details
	ServerTime time.Time   `json:"server_time"`
}
