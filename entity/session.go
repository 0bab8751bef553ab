// Package entity defines data models for the tutorpay payment service.
package entity

import "encoding/json"

// SessionRequest is the client request to open a gateway tokenization session
// for one checkout attempt.
type SessionRequest struct {
	Amount   json.Number `json:"amount" validate:"required"`
	Currency string      `json:"currency" validate:"required,len=3"`
	OrderID  string      `json:"orderId" validate:"required"`
}

// SessionInfo is returned to the client after session creation so it can
// configure the hosted card field widget. The merchant id and base URL are
// public widget parameters; credentials never leave the relay.
type SessionInfo struct {
	SessionID      string `json:"sessionId"`
	MerchantID     string `json:"merchantId"`
	GatewayBaseURL string `json:"gatewayBaseUrl"`
}

// AuthenticationRequest carries the fields for the initiate-authentication and
// authenticate-payer gateway operations. Amount and Browser are only used by
// authenticate-payer.
type AuthenticationRequest struct {
	OrderID       string          `json:"orderId" validate:"required"`
	TransactionID string          `json:"transactionId" validate:"required"`
	SessionID     string          `json:"sessionId" validate:"required"`
	Amount        json.Number     `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	ReturnURL     string          `json:"returnUrl"`
	Browser       *BrowserContext `json:"browserContext"`
}

// CaptureRequest asks the relay to capture an authorized amount. The capture
// transaction id is generated server-side; AuthTransactionID, when set, links
// the payer-authentication proof to the charge. The relay does not verify the
// authentication outcome itself; the caller establishes it by polling.
type CaptureRequest struct {
	OrderID           string      `json:"orderId" validate:"required"`
	SessionID         string      `json:"sessionId" validate:"required"`
	Amount            json.Number `json:"amount" validate:"required"`
	Currency          string      `json:"currency" validate:"required,len=3"`
	AuthTransactionID string      `json:"authTransactionId"`
	Description       string      `json:"description"`
}

// CaptureResponse reports the capture outcome. A gateway rejection is a normal
// business outcome: Success is false, GatewayCode carries the decline reason
// and Gateway the raw error payload, but the HTTP status stays 200.
type CaptureResponse struct {
	Success       bool            `json:"success"`
	Result        string          `json:"result"`
	Status        string          `json:"status,omitempty"`
	Amount        string          `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	TransactionID string          `json:"transactionId"`
	GatewayCode   string          `json:"gatewayCode,omitempty"`
	Gateway       json.RawMessage `json:"gateway,omitempty"`
}
