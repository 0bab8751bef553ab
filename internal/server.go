package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	"tutorpay/config"
	"tutorpay/entity"
	"tutorpay/services"
)

const (
	paymentSession     = "/payment/session"
	paymentInitiate    = "/payment/initiate-auth"
	paymentAuth        = "/payment/authenticate"
	paymentCallback    = "/payment/3ds-callback"
	paymentPay         = "/payment/pay"
	paymentOrderStatus = "/payment/order-status/:order_id"
	paymentRecords     = "/payment/records/:order_id"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	database   services.Database
	logger     services.LogHandler
	validate   *validator.Validate
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf:     conf,
		validate: validator.New(),
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(paymentSession, s.createSession)
	router.POST(paymentInitiate, s.initiateAuthentication)
	router.POST(paymentAuth, s.authenticatePayer)
	router.POST(paymentCallback, s.challengeCallback)
	router.POST(paymentPay, s.capture)
	router.GET(paymentOrderStatus, s.orderStatus)
	router.GET(paymentRecords, s.paymentRecords)
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetDatabase(database services.Database) {
	s.database = database
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var request entity.SessionRequest
	if !s.readRequest(w, r, reqID, &request) {
		return
	}

	info, err := s.payments.CreateSession(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] create session for order %s", reqID, request.OrderID), err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) initiateAuthentication(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var request entity.AuthenticationRequest
	if !s.readRequest(w, r, reqID, &request) {
		return
	}

	raw, err := s.payments.InitiateAuthentication(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] initiate authentication for order %s", reqID, request.OrderID), err)
		s.writeError(w, err)
		return
	}

	s.writeRaw(w, raw)
}

func (s *Server) authenticatePayer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var request entity.AuthenticationRequest
	if !s.readRequest(w, r, reqID, &request) {
		return
	}
	if request.Browser != nil {
		if request.Browser.IPAddress == "" {
			request.Browser.IPAddress = clientAddress(r)
		}
		if request.Browser.UserAgent == "" {
			request.Browser.UserAgent = r.UserAgent()
		}
	}

	raw, err := s.payments.AuthenticatePayer(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] authenticate payer for order %s", reqID, request.OrderID), err)
		s.writeError(w, err)
		return
	}

	s.writeRaw(w, raw)
}

// challengeCallback receives the bank's redirect after the 3DS challenge.
// Posted form fields are ignored; the response is the bridge document that
// signals the owning application across browsing contexts.
func (s *Server) challengeCallback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	// drain the bank-posted body so the connection can be reused
	_, _ = io.Copy(io.Discard, r.Body)

	s.logger.Info(fmt.Sprintf("[%s] 3ds challenge callback received", reqID))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := WriteBridgeDocument(w); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] write bridge document", reqID), err)
	}
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var request entity.CaptureRequest
	if !s.readRequest(w, r, reqID, &request) {
		return
	}

	response, err := s.payments.Capture(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] capture for order %s", reqID, request.OrderID), err)
		s.writeError(w, err)
		return
	}

	// capture rejection is a business outcome, always reported with 200
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) orderStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	orderID := ps.ByName("order_id")
	if orderID == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty order id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	raw, err := s.payments.OrderStatus(ctx, orderID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] order status %s", reqID, orderID), err)
		s.writeError(w, err)
		return
	}

	s.writeRaw(w, raw)
}

// paymentRecords lists the recorded capture attempts for an order. Support
// endpoint; requires the records storage to be configured.
func (s *Server) paymentRecords(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	if s.database == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	orderID := ps.ByName("order_id")
	records, err := s.database.GetPaymentRecords(ctx, orderID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment records %s", reqID, orderID), err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": entity.ErrKindInternal, "message": "records lookup failed",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, records)
}

// readRequest decodes and validates a JSON request body. On failure it writes
// a 400 response and returns false.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, reqID string, target any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] read request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err = json.Unmarshal(body, target); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] decode request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err = s.validate.Struct(target); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] invalid request: %v", reqID, err))
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "message": err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", err)
	}
}

func (s *Server) writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var relayErr *entity.RelayError
	if errors.As(err, &relayErr) {
		s.writeJSON(w, relayErr.HTTPStatus, relayErr)
		return
	}
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   entity.ErrKindInternal,
		"message": err.Error(),
	})
}

func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
