// Package checkout drives a single card checkout attempt against the gateway
// relay: session creation, widget tokenization, 3DS authentication, the bank
// challenge, bounded status polling, and capture. One Machine owns one
// attempt; it is driven by discrete asynchronous events and is safe for
// concurrent observation, but only one gateway interaction is in flight at a
// time.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tutorpay/entity"
	"tutorpay/services"
)

// State is the position of a checkout attempt in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSessionCreated
	StateWidgetConfiguring
	StateWidgetReady
	StateTokenizing
	StateAuthenticationInitiated
	StateChallengeInProgress
	StateAuthenticationPolling
	StateAuthenticationConfirmed
	StateCapturing
	StateSucceeded
	StateFailed
	// StatePending is the terminal state of the manual bank-transfer path,
	// reached directly from Idle without any gateway interaction.
	StatePending
)

var stateNames = map[State]string{
	StateIdle:                    "idle",
	StateSessionCreated:          "session_created",
	StateWidgetConfiguring:       "widget_configuring",
	StateWidgetReady:             "widget_ready",
	StateTokenizing:              "tokenizing",
	StateAuthenticationInitiated: "authentication_initiated",
	StateChallengeInProgress:     "challenge_in_progress",
	StateAuthenticationPolling:   "authentication_polling",
	StateAuthenticationConfirmed: "authentication_confirmed",
	StateCapturing:               "capturing",
	StateSucceeded:               "succeeded",
	StateFailed:                  "failed",
	StatePending:                 "pending",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrWidgetNotReady = errors.New("card widget is not ready")
	ErrBusy           = errors.New("another gateway interaction is in flight")
	ErrInvalidState   = errors.New("operation not allowed in current state")
)

// Relay is the client view of the gateway relay. Initiate, authenticate and
// order-status responses are the gateway's own JSON, decoded generically; the
// machine inspects them for challenge content and the 3DS transaction status.
type Relay interface {
	CreateSession(ctx context.Context, req *entity.SessionRequest) (*entity.SessionInfo, error)
	InitiateAuthentication(ctx context.Context, req *entity.AuthenticationRequest) (map[string]any, error)
	AuthenticatePayer(ctx context.Context, req *entity.AuthenticationRequest) (map[string]any, error)
	OrderStatus(ctx context.Context, orderID string) (map[string]any, error)
	Capture(ctx context.Context, req *entity.CaptureRequest) (*entity.CaptureResponse, error)
}

// Result exposes the terminal outcome of a successful attempt for downstream
// enrollment.
type Result struct {
	OrderID       string
	TransactionID string
	Amount        string
	Currency      string
	Status        string
}

// field-specific messages shown inline on the relevant input
var fieldMessages = map[string]string{
	"cardNumber":   "card number invalid",
	"expiryMonth":  "expiry month invalid",
	"expiryYear":   "expiry year invalid",
	"securityCode": "security code invalid",
}

const (
	defaultWidgetPollInterval = 500 * time.Millisecond
	defaultStatusPollInterval = 2 * time.Second
	defaultMaxStatusPolls     = 10
)

// Machine is the checkout state machine for one attempt.
type Machine struct {
	relay  Relay
	widget Widget
	logger services.LogHandler

	widgetPollInterval time.Duration
	statusPollInterval time.Duration
	maxStatusPolls     int

	mu            sync.Mutex
	state         State
	inFlight      bool
	orderID       string
	amount        json.Number
	currency      string
	sessionID     string
	authTxnID     string
	browser       *entity.BrowserContext
	challengeHTML string
	message       string
	fieldErrors   map[string]string
	result        *Result

	challenge chan struct{}
}

// Option configures a Machine.
type Option func(*Machine)

func WithWidgetPollInterval(d time.Duration) Option {
	return func(m *Machine) { m.widgetPollInterval = d }
}

func WithStatusPollInterval(d time.Duration) Option {
	return func(m *Machine) { m.statusPollInterval = d }
}

// WithMaxStatusPolls bounds the authentication-status polling after the
// challenge completes; exhausting it is a distinct timed-out failure.
func WithMaxStatusPolls(n int) Option {
	return func(m *Machine) { m.maxStatusPolls = n }
}

func WithLogger(logger services.LogHandler) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithBrowserContext attaches the payer's browser snapshot used by the
// authenticate-payer step.
func WithBrowserContext(browser *entity.BrowserContext) Option {
	return func(m *Machine) { m.browser = browser }
}

func New(relay Relay, widget Widget, opts ...Option) *Machine {
	m := &Machine{
		relay:              relay,
		widget:             widget,
		logger:             noopLogger{},
		widgetPollInterval: defaultWidgetPollInterval,
		statusPollInterval: defaultStatusPollInterval,
		maxStatusPolls:     defaultMaxStatusPolls,
		state:              StateIdle,
		challenge:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Message returns the last user-facing message, if any.
func (m *Machine) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}

// FieldErrors returns field-level tokenization errors keyed by input name.
func (m *Machine) FieldErrors() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.fieldErrors))
	for k, v := range m.fieldErrors {
		out[k] = v
	}
	return out
}

// Result returns the terminal outcome after a successful capture, nil before.
func (m *Machine) Result() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// ChallengeContent returns the bank challenge document to render while the
// challenge is in progress.
func (m *Machine) ChallengeContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challengeHTML
}

// SelectManualTransfer switches the attempt to the manual bank-transfer path.
// Terminal immediately; no gateway call is ever issued.
func (m *Machine) SelectManualTransfer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: manual transfer from %s", ErrInvalidState, m.state)
	}
	m.state = StatePending
	m.message = "awaiting bank transfer"
	return nil
}

// Start opens a gateway session for the order and waits for the card widget
// to become available and configured. On session failure the state stays
// Idle and the relay's message is surfaced. The widget availability poll runs
// at a fixed interval with unbounded attempts while the attempt is mounted;
// cancelling ctx (teardown) stops it.
func (m *Machine) Start(ctx context.Context, amount json.Number, currency, orderID string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, m.state)
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrBusy
	}
	m.inFlight = true
	m.orderID = orderID
	m.amount = amount
	m.currency = currency
	m.mu.Unlock()
	defer m.clearInFlight()

	info, err := m.relay.CreateSession(ctx, &entity.SessionRequest{
		Amount:   amount,
		Currency: currency,
		OrderID:  orderID,
	})
	if err != nil {
		// state stays Idle so the user can retry from scratch
		m.setMessage(err.Error())
		return err
	}

	m.mu.Lock()
	m.sessionID = info.SessionID
	m.state = StateSessionCreated
	m.mu.Unlock()
	m.logger.Info(fmt.Sprintf("order %s: session created", orderID))

	return m.awaitWidget(ctx)
}

// awaitWidget polls for the widget's configuration entry point, then
// configures it against the session. Readiness is signaled by the widget
// itself; Configure blocks until then.
func (m *Machine) awaitWidget(ctx context.Context) error {
	m.setState(StateWidgetConfiguring)

	ticker := time.NewTicker(m.widgetPollInterval)
	defer ticker.Stop()
	for !m.widget.Available() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	if err := m.widget.Configure(ctx, sessionID); err != nil {
		m.fail("payment form unavailable, please try again")
		return err
	}

	m.setState(StateWidgetReady)
	m.logger.Info("card widget ready")
	return nil
}

// SubmitCard runs the payment path from tokenization through capture. It is
// rejected client-side while the widget is not ready or while another call is
// outstanding; no request reaches the gateway in either case.
func (m *Machine) SubmitCard(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateWidgetReady {
		if m.inFlight {
			m.mu.Unlock()
			return ErrBusy
		}
		m.message = "please wait, the payment form is still loading"
		m.mu.Unlock()
		return ErrWidgetNotReady
	}
	m.inFlight = true
	m.state = StateTokenizing
	m.message = ""
	m.fieldErrors = nil
	m.mu.Unlock()
	defer m.clearInFlight()

	err := m.run(ctx)
	if err != nil && m.State() != StateWidgetReady && m.State() != StateFailed {
		// unexpected exception mid-flow
		m.fail("payment failed, please try again")
	}
	return err
}

func (m *Machine) run(ctx context.Context) error {
	tokenized, err := m.widget.Tokenize(ctx)
	if err != nil {
		m.fail("payment failed, please try again")
		return err
	}
	if len(tokenized.FieldsInError) > 0 {
		m.revertToWidget(tokenized.FieldsInError)
		return fmt.Errorf("card fields in error")
	}
	if tokenized.Err != "" {
		m.mu.Lock()
		m.state = StateWidgetReady
		m.message = "card details could not be verified, please try again"
		m.mu.Unlock()
		return fmt.Errorf("tokenization: %s", tokenized.Err)
	}

	// the widget re-tokenizes card data into an updated session
	m.mu.Lock()
	if tokenized.SessionID != "" {
		m.sessionID = tokenized.SessionID
	}
	m.authTxnID = fmt.Sprintf("auth-%d", time.Now().UnixMilli())
	orderID, sessionID, authTxnID := m.orderID, m.sessionID, m.authTxnID
	amount, currency := m.amount, m.currency
	browser := m.browser
	m.state = StateAuthenticationInitiated
	m.mu.Unlock()

	authReq := &entity.AuthenticationRequest{
		OrderID:       orderID,
		TransactionID: authTxnID,
		SessionID:     sessionID,
		Amount:        amount,
		Currency:      currency,
		Browser:       browser,
	}

	if _, err = m.relay.InitiateAuthentication(ctx, authReq); err != nil {
		m.fail("authentication could not be started")
		return err
	}

	authResp, err := m.relay.AuthenticatePayer(ctx, authReq)
	if err != nil {
		m.fail("authentication failed, please try again")
		return err
	}

	if html, required := challengeContent(authResp); required {
		m.mu.Lock()
		m.challengeHTML = html
		m.state = StateChallengeInProgress
		m.mu.Unlock()
		m.logger.Info(fmt.Sprintf("order %s: bank challenge in progress", orderID))

		// unbounded wait: the bank UX resolves the challenge, the bridge
		// signal moves us on; teardown cancels
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.challenge:
		}

		m.setState(StateAuthenticationPolling)
		if err = m.pollAuthentication(ctx); err != nil {
			return err
		}
		return m.capture(ctx, true)
	}

	// frictionless: no challenge content to display
	switch entity.OutcomeFromStatus(transactionStatus(authResp)) {
	case entity.OutcomeSuccessful:
		m.setState(StateAuthenticationConfirmed)
		return m.capture(ctx, true)
	case entity.OutcomeNotRequired:
		m.setState(StateAuthenticationConfirmed)
		return m.capture(ctx, false)
	default:
		m.fail("card authentication was declined")
		return fmt.Errorf("payer authentication rejected")
	}
}

// pollAuthentication polls the order status until the authentication
// transaction reports success, a terminal failure, or the retry ceiling is
// reached.
func (m *Machine) pollAuthentication(ctx context.Context) error {
	for attempt := 0; attempt < m.maxStatusPolls; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.statusPollInterval):
			}
		}

		m.mu.Lock()
		orderID := m.orderID
		m.mu.Unlock()

		order, err := m.relay.OrderStatus(ctx, orderID)
		if err != nil {
			m.logger.Error("order status poll", err)
			continue
		}

		status := transactionStatus(order)
		if status == "" {
			continue
		}
		switch entity.OutcomeFromStatus(status) {
		case entity.OutcomeSuccessful:
			m.setState(StateAuthenticationConfirmed)
			return nil
		case entity.OutcomeFailed:
			m.fail("card authentication was declined")
			return fmt.Errorf("authentication failed with status %s", status)
		case entity.OutcomeUnavailable:
			m.fail("card authentication is unavailable, please try again later")
			return fmt.Errorf("authentication unavailable with status %s", status)
		}
	}

	m.fail("authentication timed out")
	return fmt.Errorf("authentication status polling exhausted after %d attempts", m.maxStatusPolls)
}

// capture issues the PAY call. Reached at most once per attempt, and with the
// authentication transaction id linked only after a confirmed successful
// authentication.
func (m *Machine) capture(ctx context.Context, linkAuthentication bool) error {
	m.mu.Lock()
	m.state = StateCapturing
	req := &entity.CaptureRequest{
		OrderID:   m.orderID,
		SessionID: m.sessionID,
		Amount:    m.amount,
		Currency:  m.currency,
	}
	if linkAuthentication {
		req.AuthTransactionID = m.authTxnID
	}
	m.mu.Unlock()

	response, err := m.relay.Capture(ctx, req)
	if err != nil {
		m.fail("payment failed, please try again")
		return err
	}

	if !response.Success {
		reason := response.GatewayCode
		if reason == "" {
			reason = response.Result
		}
		m.fail(fmt.Sprintf("payment declined: %s", reason))
		return fmt.Errorf("capture rejected: %s", reason)
	}

	m.mu.Lock()
	m.state = StateSucceeded
	m.message = ""
	m.result = &Result{
		OrderID:       req.OrderID,
		TransactionID: response.TransactionID,
		Amount:        response.Amount,
		Currency:      response.Currency,
		Status:        response.Status,
	}
	m.mu.Unlock()
	m.logger.Info(fmt.Sprintf("order %s: payment captured, txn %s", req.OrderID, response.TransactionID))
	return nil
}

// ChallengeCompleted delivers the bridge signal. Delivery is best-effort and
// may repeat; duplicate or late signals outside the challenge wait are
// dropped.
func (m *Machine) ChallengeCompleted() {
	m.mu.Lock()
	waiting := m.state == StateChallengeInProgress
	m.mu.Unlock()
	if !waiting {
		return
	}
	select {
	case m.challenge <- struct{}{}:
	default:
	}
}

// Reset returns a terminal machine to Idle for a fresh attempt. All session
// and transaction identifiers are discarded; nothing is reused across
// attempts.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return ErrBusy
	}
	m.state = StateIdle
	m.orderID = ""
	m.amount = ""
	m.currency = ""
	m.sessionID = ""
	m.authTxnID = ""
	m.challengeHTML = ""
	m.message = ""
	m.fieldErrors = nil
	m.result = nil
	select {
	case <-m.challenge:
	default:
	}
	return nil
}

func (m *Machine) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Machine) setMessage(message string) {
	m.mu.Lock()
	m.message = message
	m.mu.Unlock()
}

// fail is the single terminal-failure transition: processing indicators are
// cleared and the attempt ends; the user must resubmit, which restarts from
// Idle with fresh identifiers.
func (m *Machine) fail(message string) {
	m.mu.Lock()
	m.state = StateFailed
	m.message = message
	m.mu.Unlock()
}

func (m *Machine) revertToWidget(fieldsInError map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateWidgetReady
	m.fieldErrors = make(map[string]string, len(fieldsInError))
	for field := range fieldsInError {
		if msg, ok := fieldMessages[field]; ok {
			m.fieldErrors[field] = msg
		} else {
			m.fieldErrors[field] = "invalid value"
		}
	}
	m.message = "please check the card details"
}

func (m *Machine) clearInFlight() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

// challengeContent extracts the bank challenge document from an
// authenticate-payer response, when one must be displayed.
func challengeContent(resp map[string]any) (string, bool) {
	auth, ok := resp["authentication"].(map[string]any)
	if !ok {
		return "", false
	}
	if redirect, ok := auth["redirect"].(map[string]any); ok {
		if html, ok := redirect["html"].(string); ok && html != "" {
			return html, true
		}
	}
	if html, ok := auth["redirectHtml"].(string); ok && html != "" {
		return html, true
	}
	return "", false
}

// transactionStatus digs the 3DS transactionStatus code out of a gateway
// response, either at the top level or on any transaction sub-resource of an
// order.
func transactionStatus(resp map[string]any) string {
	if status := statusOf(resp); status != "" {
		return status
	}
	if transactions, ok := resp["transaction"].([]any); ok {
		for _, t := range transactions {
			if tm, ok := t.(map[string]any); ok {
				if status := statusOf(tm); status != "" {
					return status
				}
			}
		}
	}
	return ""
}

func statusOf(node map[string]any) string {
	auth, ok := node["authentication"].(map[string]any)
	if !ok {
		return ""
	}
	tds, ok := auth["3ds"].(map[string]any)
	if !ok {
		return ""
	}
	status, _ := tds["transactionStatus"].(string)
	return status
}

type noopLogger struct{}

func (noopLogger) Debug(string)        {}
func (noopLogger) Info(string)         {}
func (noopLogger) Warn(string)         {}
func (noopLogger) Error(string, error) {}
