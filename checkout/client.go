package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tutorpay/entity"
)

// RelayClient talks to the gateway relay's HTTP surface. It never sees
// gateway credentials; everything sensitive stays behind the relay.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRelayClient(baseURL string) *RelayClient {
	return &RelayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *RelayClient) CreateSession(ctx context.Context, req *entity.SessionRequest) (*entity.SessionInfo, error) {
	var info entity.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/payment/session", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RelayClient) InitiateAuthentication(ctx context.Context, req *entity.AuthenticationRequest) (map[string]any, error) {
	var response map[string]any
	if err := c.do(ctx, http.MethodPost, "/payment/initiate-auth", req, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *RelayClient) AuthenticatePayer(ctx context.Context, req *entity.AuthenticationRequest) (map[string]any, error) {
	var response map[string]any
	if err := c.do(ctx, http.MethodPost, "/payment/authenticate", req, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *RelayClient) OrderStatus(ctx context.Context, orderID string) (map[string]any, error) {
	var response map[string]any
	if err := c.do(ctx, http.MethodGet, "/payment/order-status/"+orderID, nil, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *RelayClient) Capture(ctx context.Context, req *entity.CaptureRequest) (*entity.CaptureResponse, error) {
	var response entity.CaptureResponse
	if err := c.do(ctx, http.MethodPost, "/payment/pay", req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *RelayClient) do(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %v", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %v", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read relay response: %v", err)
	}

	if response.StatusCode != http.StatusOK {
		relayErr := &entity.RelayError{HTTPStatus: response.StatusCode}
		if json.Unmarshal(raw, relayErr) == nil && relayErr.Kind != "" {
			return relayErr
		}
		return fmt.Errorf("relay returned status %d", response.StatusCode)
	}

	if err = json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode relay response: %v", err)
	}
	return nil
}

// ensure RelayClient satisfies the machine's relay interface
var _ Relay = (*RelayClient)(nil)
