package services

import (
	"context"
	"encoding/json"

	"tutorpay/entity"
)

// Payments proxies the hosted payment gateway's REST API with the service
// credentials. Initiate/authenticate/order-status responses are passed back
// verbatim; the checkout flow inspects them for challenge content and
// authentication status.
type Payments interface {
	CreateSession(ctx context.Context, req *entity.SessionRequest) (*entity.SessionInfo, error)
	InitiateAuthentication(ctx context.Context, req *entity.AuthenticationRequest) (json.RawMessage, error)
	AuthenticatePayer(ctx context.Context, req *entity.AuthenticationRequest) (json.RawMessage, error)
	Capture(ctx context.Context, req *entity.CaptureRequest) (*entity.CaptureResponse, error)
	OrderStatus(ctx context.Context, orderID string) (json.RawMessage, error)
}
