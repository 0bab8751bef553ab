package entity

import "encoding/json"

// Relay failure kinds, ordered by where they are detected. Configuration
// errors are caught before any network call; protocol errors mean the gateway
// answered with something that is not JSON; gateway errors forward the
// gateway's own structured failure payload.
const (
	ErrKindConfiguration = "configuration_error"
	ErrKindProtocol      = "gateway_protocol_error"
	ErrKindGateway       = "gateway_error"
	ErrKindInternal      = "internal_error"
)

// RelayError is the structured failure returned by relay operations. It
// carries a suggested HTTP status so the server can map the error taxonomy
// onto the wire without inspecting the kind twice.
type RelayError struct {
	Kind       string          `json:"error"`
	Message    string          `json:"message,omitempty"`
	HTTPStatus int             `json:"-"`
	Gateway    json.RawMessage `json:"gateway,omitempty"`
	// BodySnippet holds a truncated excerpt of an unparseable gateway body
	// for diagnostics.
	BodySnippet string `json:"bodySnippet,omitempty"`
}

func (e *RelayError) Error() string {
	if e.Message != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind
}

// NewConfigurationError reports missing merchant credentials. Fatal to the
// flow, never retryable.
func NewConfigurationError(message string) *RelayError {
	return &RelayError{Kind: ErrKindConfiguration, Message: message, HTTPStatus: 500}
}

// NewProtocolError reports a gateway response body that is not valid JSON.
func NewProtocolError(message, snippet string) *RelayError {
	return &RelayError{Kind: ErrKindProtocol, Message: message, HTTPStatus: 502, BodySnippet: snippet}
}

// NewGatewayError forwards a gateway-reported failure payload verbatim.
func NewGatewayError(message string, payload json.RawMessage) *RelayError {
	return &RelayError{Kind: ErrKindGateway, Message: message, HTTPStatus: 502, Gateway: payload}
}

// NewInternalError reports a transport failure or unexpected exception.
func NewInternalError(err error) *RelayError {
	return &RelayError{Kind: ErrKindInternal, Message: err.Error(), HTTPStatus: 500}
}
