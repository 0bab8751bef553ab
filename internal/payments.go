package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"tutorpay/config"
	"tutorpay/entity"
	"tutorpay/services"
)

const (
	apiOperationInitiateAuth      = "INITIATE_AUTHENTICATION"
	apiOperationAuthenticatePayer = "AUTHENTICATE_PAYER"
	apiOperationPay               = "PAY"

	gatewayResultSuccess = "SUCCESS"

	// maximum number of raw body bytes echoed back on a protocol error
	bodySnippetLimit = 256
)

// Payments proxies card payment operations to the hosted gateway.
// It uses fine-grained locking per order to allow concurrent checkouts
// while keeping capture id generation safe per order.
type Payments struct {
	conf       *config.Config
	database   services.Database
	logger     services.LogHandler
	locks      sync.Map // map[string]*sync.Mutex for per-order locking
	issuedIDs  *cache.Cache
	httpClient *http.Client
}

// NewPayments creates the payment relay with a configured HTTP client.
// The HTTP client includes timeouts and connection pooling for reliable
// calls against the external gateway API.
func NewPayments(conf *config.Config) *Payments {
	return &Payments{
		conf:      conf,
		locks:     sync.Map{},
		issuedIDs: cache.New(time.Hour, 2*time.Hour),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if p.conf.Gateway.MerchantID == "" || p.conf.Gateway.APIPassword == "" {
		p.logger.Warn("merchant credentials not configured; session creation will fail")
	} else {
		p.logger.Info(fmt.Sprintf("gateway relay enabled for merchant %s", secret(p.conf.Gateway.MerchantID)))
	}
}

// lockOrder acquires a lock for a specific order to prevent concurrent
// modifications. Different orders proceed in parallel.
func (p *Payments) lockOrder(orderID string) *sync.Mutex {
	value, _ := p.locks.LoadOrStore(orderID, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex
}

// unlockOrder releases the order lock and removes the mutex from the map to
// prevent unbounded growth.
func (p *Payments) unlockOrder(orderID string, mutex *sync.Mutex) {
	mutex.Unlock()
	p.locks.Delete(orderID)
}

// CreateSession opens a gateway tokenization session for one checkout
// attempt. Fails before any network call when merchant credentials are
// missing. Card data is never part of this request; the hosted field widget
// collects it later against the returned session.
func (p *Payments) CreateSession(ctx context.Context, req *entity.SessionRequest) (*entity.SessionInfo, error) {
	if p.conf.Gateway.MerchantID == "" || p.conf.Gateway.APIPassword == "" {
		return nil, entity.NewConfigurationError("merchant id or api password not configured")
	}

	payload := map[string]any{
		"session": map[string]any{
			"authenticationLimit": p.conf.Gateway.AuthenticationLimit,
		},
	}

	raw, err := p.doGateway(ctx, http.MethodPost, p.apiURL("session"), payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result  string `json:"result"`
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	// raw already passed a JSON validity check in doGateway
	_ = json.Unmarshal(raw, &result)

	if result.Result != gatewayResultSuccess || result.Session.ID == "" {
		p.logger.Warn(fmt.Sprintf("session creation rejected for order %s", req.OrderID))
		return nil, entity.NewGatewayError("session creation failed", raw)
	}

	p.logger.Info(fmt.Sprintf("session %s created for order %s", secret(result.Session.ID), req.OrderID))
	return &entity.SessionInfo{
		SessionID:      result.Session.ID,
		MerchantID:     p.conf.Gateway.MerchantID,
		GatewayBaseURL: p.conf.Gateway.BaseURL,
	}, nil
}

// InitiateAuthentication requests 3DS authentication initiation on the
// order's transaction resource. The gateway response is returned verbatim;
// the caller inspects it for whether a challenge redirect is required.
// Gateway-side errors inside a well-formed body are relay-transparent.
func (p *Payments) InitiateAuthentication(ctx context.Context, req *entity.AuthenticationRequest) (json.RawMessage, error) {
	payload := map[string]any{
		"apiOperation": apiOperationInitiateAuth,
		"authentication": map[string]any{
			"acceptVersions": "3DS1,3DS2",
			"channel":        "PAYER_BROWSER",
			"purpose":        "PAYMENT_TRANSACTION",
		},
		"order": map[string]any{
			"currency": req.Currency,
		},
		"session": map[string]any{
			"id": req.SessionID,
		},
	}

	return p.doGateway(ctx, http.MethodPut, p.apiURL("order", req.OrderID, "transaction", req.TransactionID), payload)
}

// AuthenticatePayer runs the payer authentication step with the full browser
// fingerprint. The response indicates either a frictionless pass or the need
// to display bank challenge content; it is forwarded verbatim.
func (p *Payments) AuthenticatePayer(ctx context.Context, req *entity.AuthenticationRequest) (json.RawMessage, error) {
	amount, err := entity.NormalizeAmount(req.Amount)
	if err != nil {
		return nil, entity.NewInternalError(fmt.Errorf("normalize amount: %v", err))
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = p.conf.Gateway.CallbackURL
	}

	browser := req.Browser.WithDefaults()
	payload := map[string]any{
		"apiOperation": apiOperationAuthenticatePayer,
		"authentication": map[string]any{
			"redirectResponseUrl": returnURL,
		},
		"device": map[string]any{
			"browser":   browser.UserAgent,
			"ipAddress": browser.IPAddress,
			"browserDetails": map[string]any{
				"3DSecureChallengeWindowSize": "FULL_SCREEN",
				"acceptHeaders":               browser.AcceptHeaders,
				"colorDepth":                  browser.ColorDepth,
				"javaEnabled":                 browser.JavaEnabled,
				"language":                    browser.Language,
				"screenHeight":                browser.ScreenHeight,
				"screenWidth":                 browser.ScreenWidth,
				"timeZone":                    *browser.TimezoneOffset,
			},
		},
		"order": map[string]any{
			"amount":   amount,
			"currency": req.Currency,
		},
		"session": map[string]any{
			"id": req.SessionID,
		},
	}

	return p.doGateway(ctx, http.MethodPut, p.apiURL("order", req.OrderID, "transaction", req.TransactionID), payload)
}

// Capture issues a PAY request for the order. A fresh capture transaction id
// is generated per attempt and never reused; when an authentication
// transaction id is supplied the payer-authentication proof is linked to the
// charge. The relay does not re-verify the authentication outcome; that
// guarantee belongs to the caller. A gateway rejection is a normal business
// outcome reported with Success=false, not an error.
func (p *Payments) Capture(ctx context.Context, req *entity.CaptureRequest) (*entity.CaptureResponse, error) {
	amount, err := entity.NormalizeAmount(req.Amount)
	if err != nil {
		return nil, entity.NewInternalError(fmt.Errorf("normalize amount: %v", err))
	}

	mutex := p.lockOrder(req.OrderID)
	transactionID := p.newTransactionID(req.OrderID, req.AuthTransactionID)
	p.unlockOrder(req.OrderID, mutex)

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("course order %s", req.OrderID)
	}

	payload := map[string]any{
		"apiOperation": apiOperationPay,
		"order": map[string]any{
			"amount":      amount,
			"currency":    req.Currency,
			"reference":   req.OrderID,
			"description": description,
		},
		"session": map[string]any{
			"id": req.SessionID,
		},
		"transaction": map[string]any{
			"reference": req.OrderID,
		},
	}
	if req.AuthTransactionID != "" {
		payload["authentication"] = map[string]any{
			"transactionId": req.AuthTransactionID,
		}
	}

	raw, err := p.doGateway(ctx, http.MethodPut, p.apiURL("order", req.OrderID, "transaction", transactionID), payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result string `json:"result"`
		Order  struct {
			Status   string      `json:"status"`
			Amount   json.Number `json:"amount"`
			Currency string      `json:"currency"`
		} `json:"order"`
		Response struct {
			GatewayCode string `json:"gatewayCode"`
		} `json:"response"`
	}
	_ = json.Unmarshal(raw, &result)

	response := &entity.CaptureResponse{
		Result:        result.Result,
		Status:        result.Order.Status,
		Currency:      result.Order.Currency,
		TransactionID: transactionID,
		GatewayCode:   result.Response.GatewayCode,
	}
	if result.Order.Amount != "" {
		response.Amount = result.Order.Amount.String()
	} else {
		response.Amount = amount
	}
	if response.Currency == "" {
		response.Currency = req.Currency
	}

	if result.Result == gatewayResultSuccess {
		response.Success = true
		p.logger.Info(fmt.Sprintf("order %s captured: txn %s, %s %s", req.OrderID, transactionID, response.Amount, response.Currency))
	} else {
		response.Success = false
		response.Gateway = raw
		p.logger.Warn(fmt.Sprintf("order %s capture rejected: result %s, code %s", req.OrderID, result.Result, result.Response.GatewayCode))
	}

	p.savePaymentRecord(ctx, req, response)

	return response, nil
}

// OrderStatus is a read-only passthrough of the gateway order resource,
// used by the checkout flow to poll the authentication result and by support
// for diagnostics.
func (p *Payments) OrderStatus(ctx context.Context, orderID string) (json.RawMessage, error) {
	return p.doGateway(ctx, http.MethodGet, p.apiURL("order", orderID), nil)
}

// newTransactionID generates a capture transaction id, distinct from the
// authentication transaction id and from every id previously issued for the
// same order within the process lifetime. Must be called under the order lock.
func (p *Payments) newTransactionID(orderID, authTransactionID string) string {
	var issued []string
	if cached, ok := p.issuedIDs.Get(orderID); ok {
		issued = cached.([]string)
	}

	for {
		id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
		if id == authTransactionID || contains(issued, id) {
			continue
		}
		issued = append(issued, id)
		p.issuedIDs.Set(orderID, issued, cache.DefaultExpiration)
		return id
	}
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func (p *Payments) savePaymentRecord(ctx context.Context, req *entity.CaptureRequest, response *entity.CaptureResponse) {
	if p.database == nil {
		return
	}
	record := &entity.PaymentRecord{
		OrderID:           req.OrderID,
		TransactionID:     response.TransactionID,
		AuthTransactionID: req.AuthTransactionID,
		SessionID:         req.SessionID,
		Amount:            response.Amount,
		Currency:          response.Currency,
		Result:            response.Result,
		Status:            response.Status,
		GatewayCode:       response.GatewayCode,
		Success:           response.Success,
		Time:              time.Now(),
	}
	if err := p.database.SavePaymentRecord(ctx, record); err != nil {
		p.logger.Error("save payment record", err)
	}
}

func (p *Payments) apiURL(parts ...string) string {
	base := strings.TrimSuffix(p.conf.Gateway.BaseURL, "/")
	path := strings.Join(parts, "/")
	return fmt.Sprintf("%s/api/rest/version/%s/merchant/%s/%s", base, p.conf.Gateway.APIVersion, p.conf.Gateway.MerchantID, path)
}

// doGateway performs one request against the gateway REST API with the
// service credentials. Transport failures become internal errors; a body
// that is not valid JSON becomes a protocol error carrying a truncated
// excerpt for diagnostics. The relay never retries.
func (p *Payments) doGateway(ctx context.Context, method, url string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, entity.NewInternalError(fmt.Errorf("encode request: %v", err))
		}
		p.logger.Debug(fmt.Sprintf("gateway request %s %s: %s", method, url, string(data)))
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, entity.NewInternalError(fmt.Errorf("create request: %v", err))
	}
	req.SetBasicAuth("merchant."+p.conf.Gateway.MerchantID, p.conf.Gateway.APIPassword)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	response, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, entity.NewInternalError(fmt.Errorf("gateway request cancelled: %v", ctx.Err()))
		}
		return nil, entity.NewInternalError(fmt.Errorf("gateway request: %v", err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			p.logger.Error("close response body", err)
		}
	}(response.Body)

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, entity.NewInternalError(fmt.Errorf("read response body: %v", err))
	}

	if !json.Valid(raw) {
		snippet := string(raw)
		if len(snippet) > bodySnippetLimit {
			snippet = snippet[:bodySnippetLimit]
		}
		p.logger.Warn(fmt.Sprintf("unparseable gateway response: %s", snippet))
		return nil, entity.NewProtocolError("gateway returned a non-JSON response", snippet)
	}

	p.logger.Debug(fmt.Sprintf("gateway response: %s", string(raw)))
	return raw, nil
}

// ensure Payments satisfies the service interface
var _ services.Payments = (*Payments)(nil)
