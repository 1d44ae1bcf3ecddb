package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	listingledger "bazaar/contexts/marketplace/listing-ledger"
	ledgerdomainerrors "bazaar/contexts/marketplace/listing-ledger/domain/errors"
	ledgerhttp "bazaar/contexts/marketplace/listing-ledger/transport/http"
	_ "bazaar/internal/platform/httpserver/docs"
	"bazaar/internal/platform/ratelimiter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxBodyBytes = 1 << 20

type Options struct {
	Addr          string
	Limiter       *ratelimiter.MapLimiter
	EnableSwagger bool
	// MetricsGatherer backs /metrics; nil disables the endpoint.
	MetricsGatherer prometheus.Gatherer
}

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	limiter *ratelimiter.MapLimiter
	ledger  listingledger.Module
	http    *http.Server
}

func New(ledger listingledger.Module, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		limiter: opts.Limiter,
		ledger:  ledger,
	}
	s.registerRoutes(opts)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start blocks until the server stops. http.ErrServerClosed after Shutdown
// is reported as nil.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes(opts Options) {
	if opts.EnableSwagger {
		s.mux.Handle("/swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}
	if opts.MetricsGatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("POST /v1/listings", s.limited(s.handleCreateListing))
	s.mux.HandleFunc("GET /v1/listings", s.limited(s.handleListListings))
	s.mux.HandleFunc("GET /v1/listings/count", s.limited(s.handleTotalListings))
	s.mux.HandleFunc("GET /v1/listings/{listing_id}", s.limited(s.handleGetListing))
	s.mux.HandleFunc("GET /v1/listings/{listing_id}/availability", s.limited(s.handleAvailability))
	s.mux.HandleFunc("POST /v1/listings/{listing_id}/purchase", s.limited(s.handlePurchaseListing))
	s.mux.HandleFunc("GET /v1/accounts/{account_id}/balance", s.limited(s.handleBalance))
}

// limited rejects callers over their token bucket. Requests without an
// identity are keyed by client address.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if key == "" {
			key = resolveClientIP(r)
		}
		if !s.limiter.Allow(key, time.Now()) {
			s.logger.Warn("request rate limited",
				"event", "http_rate_limited",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"caller", key,
				"path", r.URL.Path,
			)
			writeLedgerError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	caller := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if caller == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.CreateListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.CreateListingHandler(
		r.Context(),
		caller,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handlePurchaseListing(w http.ResponseWriter, r *http.Request) {
	caller := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if caller == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	listingID, ok := parseListingID(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.PurchaseListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.PurchaseListingHandler(r.Context(), caller, listingID, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := parseListingID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.GetListingHandler(r.Context(), listingID)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ListListingsHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTotalListings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.TotalListingsHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	listingID, ok := parseListingID(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.AvailabilityHandler(r.Context(), listingID)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.BalanceHandler(r.Context(), r.PathValue("account_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListingID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("listing_id")
	listingID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_listing_id", "listing_id must be an unsigned integer")
		return 0, false
	}
	return listingID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgerdomainerrors.ErrInvalidInput):
		writeLedgerError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrListingNotFound):
		writeLedgerError(w, http.StatusNotFound, "listing_not_found", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrInsufficientPayment):
		writeLedgerError(w, http.StatusPaymentRequired, "insufficient_payment", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrAlreadySold):
		writeLedgerError(w, http.StatusConflict, "already_sold", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrSelfPurchase):
		writeLedgerError(w, http.StatusForbidden, "self_purchase", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrTransferFailed):
		writeLedgerError(w, http.StatusBadGateway, "transfer_failed", ledgerdomainerrors.ErrTransferFailed.Error())
	case errors.Is(err, ledgerdomainerrors.ErrIdempotencyKeyConflict):
		writeLedgerError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
