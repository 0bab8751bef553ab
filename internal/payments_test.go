package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorpay/config"
	"tutorpay/entity"
)

// fakeGateway records every upstream request and answers with a programmable
// status and body.
type fakeGateway struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newFakeGateway() *fakeGateway {
	g := &fakeGateway{status: http.StatusOK, body: `{}`}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.requests = append(g.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		status, responseBody := g.status, g.body
		g.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(responseBody))
	}))
	return g
}

func (g *fakeGateway) respond(status int, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
	g.body = body
}

func (g *fakeGateway) calls() []recordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]recordedRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

func (g *fakeGateway) lastBody(t *testing.T) map[string]any {
	t.Helper()
	calls := g.calls()
	require.NotEmpty(t, calls)
	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[len(calls)-1].body, &body))
	return body
}

func testConfig(gatewayURL string) *config.Config {
	conf := &config.Config{}
	conf.Gateway.BaseURL = gatewayURL
	conf.Gateway.APIVersion = "73"
	conf.Gateway.MerchantID = "TESTMERCHANT"
	conf.Gateway.APIPassword = "apipassword"
	conf.Gateway.CallbackURL = "https://shop.example/payment/3ds-callback"
	conf.Gateway.AuthenticationLimit = 25
	return conf
}

func newTestPayments(conf *config.Config) *Payments {
	payments := NewPayments(conf)
	payments.SetLogger(NewLogger("payments-test", false, nil))
	return payments
}

func TestCreateSession_MissingCredentials(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()

	conf := testConfig(gateway.server.URL)
	conf.Gateway.MerchantID = ""
	payments := newTestPayments(conf)

	_, err := payments.CreateSession(context.Background(), &entity.SessionRequest{
		Amount: "10", Currency: "USD", OrderID: "order-1",
	})

	var relayErr *entity.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, entity.ErrKindConfiguration, relayErr.Kind)
	assert.Equal(t, 500, relayErr.HTTPStatus)
	// detected before any network call
	assert.Empty(t, gateway.calls())
}

func TestCreateSession_Success(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"SUCCESS","session":{"id":"SESSION0001"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	info, err := payments.CreateSession(context.Background(), &entity.SessionRequest{
		Amount: "49.99", Currency: "USD", OrderID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "SESSION0001", info.SessionID)
	assert.Equal(t, "TESTMERCHANT", info.MerchantID)
	assert.Equal(t, gateway.server.URL, info.GatewayBaseURL)

	calls := gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/rest/version/73/merchant/TESTMERCHANT/session", calls[0].path)
	assert.NotEmpty(t, calls[0].auth, "gateway calls must carry basic auth")

	body := gateway.lastBody(t)
	session := body["session"].(map[string]any)
	assert.EqualValues(t, 25, session["authenticationLimit"])
	// no card data in session creation
	assert.NotContains(t, body, "sourceOfFunds")
}

func TestCreateSession_GatewayRejection(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"ERROR","error":{"cause":"INVALID_REQUEST","explanation":"merchant disabled"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	_, err := payments.CreateSession(context.Background(), &entity.SessionRequest{
		Amount: "10", Currency: "USD", OrderID: "order-1",
	})

	var relayErr *entity.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, entity.ErrKindGateway, relayErr.Kind)
	// the gateway's own error payload is forwarded verbatim
	assert.Contains(t, string(relayErr.Gateway), "INVALID_REQUEST")
}

func TestCreateSession_NonJSONBody(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(502, `<html>bad gateway</html>`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	_, err := payments.CreateSession(context.Background(), &entity.SessionRequest{
		Amount: "10", Currency: "USD", OrderID: "order-1",
	})

	var relayErr *entity.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, entity.ErrKindProtocol, relayErr.Kind)
	assert.Equal(t, 502, relayErr.HTTPStatus)
	assert.Contains(t, relayErr.BodySnippet, "<html>")
}

func TestInitiateAuthentication_Verbatim(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	// an error inside a well-formed 200 body is relay-transparent
	gateway.respond(200, `{"result":"ERROR","error":{"cause":"SERVER_BUSY"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	raw, err := payments.InitiateAuthentication(context.Background(), &entity.AuthenticationRequest{
		OrderID:       "order-1",
		TransactionID: "auth-1",
		SessionID:     "SESSION0001",
		Currency:      "USD",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"ERROR","error":{"cause":"SERVER_BUSY"}}`, string(raw))

	calls := gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].method)
	assert.Equal(t, "/api/rest/version/73/merchant/TESTMERCHANT/order/order-1/transaction/auth-1", calls[0].path)

	body := gateway.lastBody(t)
	assert.Equal(t, "INITIATE_AUTHENTICATION", body["apiOperation"])
}

func TestAuthenticatePayer_NormalizesAmountAndDefaults(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"SUCCESS"}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	_, err := payments.AuthenticatePayer(context.Background(), &entity.AuthenticationRequest{
		OrderID:       "order-1",
		TransactionID: "auth-1",
		SessionID:     "SESSION0001",
		Amount:        "10.555",
		Currency:      "USD",
	})
	require.NoError(t, err)

	body := gateway.lastBody(t)
	assert.Equal(t, "AUTHENTICATE_PAYER", body["apiOperation"])

	order := body["order"].(map[string]any)
	assert.Equal(t, "10.56", order["amount"])

	auth := body["authentication"].(map[string]any)
	assert.Equal(t, "https://shop.example/payment/3ds-callback", auth["redirectResponseUrl"])

	device := body["device"].(map[string]any)
	details := device["browserDetails"].(map[string]any)
	assert.Equal(t, "en-US", details["language"])
	assert.EqualValues(t, 1366, details["screenWidth"])
	assert.EqualValues(t, 768, details["screenHeight"])
	assert.EqualValues(t, -180, details["timeZone"])
	assert.EqualValues(t, 24, details["colorDepth"])
	assert.Equal(t, false, details["javaEnabled"])
}

func TestCapture_Success(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"SUCCESS","order":{"status":"CAPTURED","amount":49.99,"currency":"USD"},"response":{"gatewayCode":"APPROVED"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	response, err := payments.Capture(context.Background(), &entity.CaptureRequest{
		OrderID:           "order-1",
		SessionID:         "SESSION0002",
		Amount:            "49.99",
		Currency:          "USD",
		AuthTransactionID: "auth-1",
	})
	require.NoError(t, err)

	assert.True(t, response.Success)
	assert.Equal(t, "SUCCESS", response.Result)
	assert.Equal(t, "CAPTURED", response.Status)
	assert.Equal(t, "49.99", response.Amount)
	assert.Equal(t, "USD", response.Currency)
	assert.Equal(t, "APPROVED", response.GatewayCode)
	assert.NotEqual(t, "auth-1", response.TransactionID)

	calls := gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/rest/version/73/merchant/TESTMERCHANT/order/order-1/transaction/"+response.TransactionID, calls[0].path)

	body := gateway.lastBody(t)
	assert.Equal(t, "PAY", body["apiOperation"])
	auth := body["authentication"].(map[string]any)
	assert.Equal(t, "auth-1", auth["transactionId"])
}

func TestCapture_TransactionIDsNeverReused(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"SUCCESS","order":{"status":"CAPTURED"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	seen := map[string]bool{"auth-1": true}
	for i := 0; i < 5; i++ {
		response, err := payments.Capture(context.Background(), &entity.CaptureRequest{
			OrderID:           "order-1",
			SessionID:         "SESSION0002",
			Amount:            "10",
			Currency:          "USD",
			AuthTransactionID: "auth-1",
		})
		require.NoError(t, err)
		assert.False(t, seen[response.TransactionID], "transaction id %s reused", response.TransactionID)
		seen[response.TransactionID] = true
	}
}

func TestCapture_Rejected(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"result":"FAILURE","response":{"gatewayCode":"DECLINED"}}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	response, err := payments.Capture(context.Background(), &entity.CaptureRequest{
		OrderID:   "order-1",
		SessionID: "SESSION0002",
		Amount:    "10",
		Currency:  "USD",
	})
	// a rejection is a business outcome, not an error
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Equal(t, "FAILURE", response.Result)
	assert.Equal(t, "DECLINED", response.GatewayCode)
	assert.Contains(t, string(response.Gateway), "DECLINED")

	// without an authentication transaction id no authentication block is sent
	body := gateway.lastBody(t)
	assert.NotContains(t, body, "authentication")
}

func TestOrderStatus_Passthrough(t *testing.T) {
	gateway := newFakeGateway()
	defer gateway.server.Close()
	gateway.respond(200, `{"status":"AUTHENTICATED","transaction":[{"authentication":{"3ds":{"transactionStatus":"Y"}}}]}`)

	payments := newTestPayments(testConfig(gateway.server.URL))

	raw, err := payments.OrderStatus(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"transactionStatus":"Y"`)

	calls := gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, "/api/rest/version/73/merchant/TESTMERCHANT/order/order-1", calls[0].path)
}
