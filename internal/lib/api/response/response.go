package response

// Response is the JSON envelope every API endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Ok wraps a successful payload.
func Ok(payload any) Response {
	return Response{Success: true, Payload: payload}
}

// OkMessage reports success with a human-readable message and no payload.
func OkMessage(msg string) Response {
	return Response{Success: true, Message: msg}
}

// Error reports a failure with a human-readable message.
func Error(msg string) Response {
	return Response{Success: false, Message: msg}
}
