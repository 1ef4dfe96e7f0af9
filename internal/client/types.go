package client

type StreamState string

const (
	StreamConnecting   StreamState = "CONNECTING"
	StreamConnected    StreamState = "CONNECTED"
	StreamDisconnected StreamState = "DISCONNECTED"
	StreamReconnecting StreamState = "RECONNECTING"
	StreamFailed       StreamState = "FAILED"
)

func (s StreamState) String() string {
	return string(s)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
