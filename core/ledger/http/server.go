// Package http exposes a ledger over HTTP and implements a client of it.
//
// The server routes are:
//
//	POST /v1/compile                compiles a program source
//	GET  /v1/params                 returns the suggested parameters
//	POST /v1/transactions           submits a signed transaction
//	GET  /v1/transactions/{id}      returns the status of a transaction
//	GET  /v1/applications/{id}      returns the global state of an application
//	GET  /v1/accounts/{addr}        returns the state of an account
//	GET  /metrics                   exposes the Prometheus metrics
//
// Failures are returned with a JSON body and a status code that the client
// maps back to the errors of the ledger package: 409 for a transaction already
// seen, 422 for a rejection, 404 for a missing resource and 5xx when the ledger
// is not available.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/serde"
	sjson "github.com/bitpond/appkit/serde/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

type key int

const (
	requestIDKey key = 0
)

// TokenHeader is the header that carries the access token.
const TokenHeader = "X-Ledger-Token"

const maxBodySize = 1 << 20

const shutdownTimeout = 10 * time.Second

// Server is an HTTP server in front of a ledger service.
type Server struct {
	sync.Mutex

	service    ledger.Service
	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	listener   net.Listener
	done       chan struct{}

	ctx       serde.Context
	txFactory signed.TransactionFactory
}

type serverTemplate struct {
	token       string
	metricsPath string
}

// ServerOption is the type of options to create a server.
type ServerOption func(*serverTemplate)

// WithToken is an option to require the token in the header of every request
// to the ledger routes.
func WithToken(token string) ServerOption {
	return func(tmpl *serverTemplate) {
		tmpl.token = token
	}
}

// WithMetricsPath is an option to change the path of the Prometheus handler.
// An empty path disables it.
func WithMetricsPath(path string) ServerOption {
	return func(tmpl *serverTemplate) {
		tmpl.metricsPath = path
	}
}

// NewServer creates a new server of the ledger service that will listen on the
// address.
func NewServer(listenAddr string, service ledger.Service, opts ...ServerOption) *Server {
	tmpl := serverTemplate{
		metricsPath: "/metrics",
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	logger := appkit.Logger.With().Str("component", "http").Logger()

	nextRequestID := func() string {
		return xid.New().String()
	}

	s := &Server{
		service:    service,
		mux:        http.NewServeMux(),
		logger:     logger,
		listenAddr: listenAddr,
		ctx:        sjson.NewContext(),
		txFactory:  signed.NewTransactionFactory(),
	}

	guard := authorize(tmpl.token)

	s.mux.Handle("POST /v1/compile", guard(http.HandlerFunc(s.compile)))
	s.mux.Handle("GET /v1/params", guard(http.HandlerFunc(s.params)))
	s.mux.Handle("POST /v1/transactions", guard(http.HandlerFunc(s.submit)))
	s.mux.Handle("GET /v1/transactions/{id}", guard(http.HandlerFunc(s.status)))
	s.mux.Handle("GET /v1/applications/{id}", guard(http.HandlerFunc(s.application)))
	s.mux.Handle("GET /v1/accounts/{addr}", guard(http.HandlerFunc(s.account)))

	if tmpl.metricsPath != "" {
		registry := prometheus.NewRegistry()

		for _, c := range appkit.PromCollectors {
			err := registry.Register(c)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to register collector")
			}
		}

		s.mux.Handle("GET "+tmpl.metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Handler:           tracing(nextRequestID)(logging(logger)(s.mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the handler of the server.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts to listen on the address and serves the requests in the
// background.
func (s *Server) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.listener != nil {
		return xerrors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return xerrors.Errorf("failed to listen on %s: %v", s.listenAddr, err)
	}

	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		err := s.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			s.logger.Err(err).Msg("server failed")
		}
	}()

	s.logger.Info().Stringer("addr", ln.Addr()).Msg("server is ready to handle requests")

	return nil
}

// GetAddr returns the address the server is listening on, or nil if it is not
// started.
func (s *Server) GetAddr() net.Addr {
	s.Lock()
	defer s.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.Lock()
	defer s.Unlock()

	if s.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.server.SetKeepAlivesEnabled(false)

	err := s.server.Shutdown(ctx)
	if err != nil {
		return xerrors.Errorf("failed to shutdown: %v", err)
	}

	<-s.done

	s.logger.Info().Msg("server stopped")

	return nil
}

func (s *Server) compile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, xerrors.Errorf("malformed request: %v", err))
		return
	}

	compiled, err := s.service.Compile(r.Context(), req.Source)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	s.reply(w, http.StatusOK, compiled)
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	params, err := s.service.SuggestedParams(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	s.reply(w, http.StatusOK, newParamsJSON(params))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, xerrors.Errorf("failed to read body: %v", err))
		return
	}

	stx, err := s.txFactory.TransactionOf(s.ctx, data)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, xerrors.Errorf("malformed transaction: %v", err))
		return
	}

	id, err := s.service.Submit(r.Context(), stx)
	if err != nil {
		s.failLedger(w, r, err)
		return
	}

	s.reply(w, http.StatusAccepted, SubmitResponse{ID: id})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.failLedger(w, r, err)
		return
	}

	s.reply(w, http.StatusOK, status)
}

func (s *Server) application(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, xerrors.Errorf("malformed application id: %v", err))
		return
	}

	state, err := s.service.GetApplicationState(r.Context(), id)
	if err != nil {
		s.failLedger(w, r, err)
		return
	}

	s.reply(w, http.StatusOK, ApplicationJSON{ID: id, State: state})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	addr, err := txn.ParseAddress(r.PathValue("addr"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	acct, err := s.service.GetAccount(r.Context(), addr)
	if err != nil {
		s.failLedger(w, r, err)
		return
	}

	s.reply(w, http.StatusOK, acct)
}

func (s *Server) reply(w http.ResponseWriter, code int, msg interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(msg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

// failLedger replies with the status code of the kind of ledger error.
func (s *Server) failLedger(w http.ResponseWriter, r *http.Request, err error) {
	reason, rejected := ledger.IsRejected(err)

	switch {
	case rejected:
		msg := ErrorJSON{Error: err.Error(), Reason: reason}
		s.reply(w, http.StatusUnprocessableEntity, msg)
	case xerrors.Is(err, ledger.ErrAlreadySeen):
		s.fail(w, r, http.StatusConflict, err)
	case xerrors.Is(err, ledger.ErrNotFound):
		s.fail(w, r, http.StatusNotFound, err)
	case ledger.IsUnavailable(err):
		s.fail(w, r, http.StatusServiceUnavailable, err)
	default:
		s.fail(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Err(err).Str("requestID", requestID).Msg("request failed")
	}

	s.reply(w, code, ErrorJSON{Error: err.Error()})
}

// authorize is a utility function that checks the access token when one is
// set.
func authorize(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(TokenHeader) != token {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(ErrorJSON{Error: "invalid token"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// logging is a utility function that logs the http server events
func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()

			defer func() {
				requestID, ok := r.Context().Value(requestIDKey).(string)
				if !ok {
					requestID = "unknown"
				}
				logger.Debug().Str("requestID", requestID).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Int("status", rec.code).
					Dur("duration", time.Since(start)).
					Str("remoteAddr", r.RemoteAddr).
					Str("agent", r.UserAgent()).Msg("")
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// tracing is a utility function that adds header tracing
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = nextRequestID()
			}
			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
