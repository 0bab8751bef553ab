package checkout

import "context"

// Widget is the embedded card capture surface hosted by the gateway. Raw card
// data never crosses this interface: the widget tokenizes the primary account
// number, expiry and security code directly against the gateway session, and
// only the updated session id or field-level errors come back. PCI scope
// stays with the gateway.
type Widget interface {
	// Available reports whether the widget's configuration entry point is
	// reachable yet. The machine polls this at a fixed interval while the
	// attempt is mounted.
	Available() bool
	// Configure binds the widget to the gateway session and the target card
	// input elements, returning once the widget itself signals readiness.
	Configure(ctx context.Context, sessionID string) error
	// Tokenize reads and tokenizes the embedded card fields against the
	// current session. The widget's asynchronous callback is surfaced as a
	// single awaited result.
	Tokenize(ctx context.Context) (*TokenizeResult, error)
}

// TokenizeResult is the widget's tokenization callback outcome. Exactly one
// of the three shapes applies: an updated session id on success, field-level
// validation errors, or an unclassified tokenization error.
type TokenizeResult struct {
	// SessionID is the session carrying the tokenized card data; it may
	// replace the session id the widget was configured with.
	SessionID string
	// FieldsInError maps failed inputs (cardNumber, expiryMonth, expiryYear,
	// securityCode) to the widget's error code.
	FieldsInError map[string]string
	// Err carries an unclassified tokenization failure.
	Err string
}
