// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/service"
)

// Service interfaces for dependency injection and testing

// AuthServiceInterface defines the interface for sign-in operations
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, req *service.AuthRequest) (*service.AuthResponse, error)
}

// CreditServiceInterface defines the interface for credit operations
type CreditServiceInterface interface {
	CreatePermission(ctx context.Context, userID string, req *service.CreatePermissionRequest) (*models.SpendPermission, error)
	RevokePermission(ctx context.Context, userID, permissionID string) error
	ListPermissions(ctx context.Context, userID string) ([]*models.SpendPermission, error)
	GetSummary(ctx context.Context, userID string) (*service.CreditSummary, error)
}

// SettlementServiceInterface defines the interface for webhook settlement
type SettlementServiceInterface interface {
	ProcessEvent(ctx context.Context, event *service.WebhookEvent) (*service.SettlementOutcome, error)
}

// ReceiptServiceInterface defines the interface for receipt queries
type ReceiptServiceInterface interface {
	List(ctx context.Context, filter *models.ReceiptFilter) (*service.ReceiptPage, error)
	Summarize(ctx context.Context, filter *models.ReceiptFilter) (*models.ReceiptSummary, error)
}

// SweeperServiceInterface defines the interface for recurring credit sweeps
type SweeperServiceInterface interface {
	SweepDue(ctx context.Context) (*service.SweepReport, error)
	Preview(ctx context.Context, limit int) ([]*models.RecurringCredit, error)
}

// UserDirectory resolves users for address-keyed endpoints
type UserDirectory interface {
	GetByAddress(ctx context.Context, address string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Server represents the HTTP API server.
type Server struct {
	router            *mux.Router
	httpServer        *http.Server
	authService       AuthServiceInterface
	creditService     CreditServiceInterface
	settlementService SettlementServiceInterface
	receiptService    ReceiptServiceInterface
	sweeperService    SweeperServiceInterface
	users             UserDirectory
	tokens            TokenValidator
	config            *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WebhookSecret   string
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	authService AuthServiceInterface,
	creditService CreditServiceInterface,
	settlementService SettlementServiceInterface,
	receiptService ReceiptServiceInterface,
	sweeperService SweeperServiceInterface,
	users UserDirectory,
	tokens TokenValidator,
) *Server {
	s := &Server{
		router:            mux.NewRouter(),
		authService:       authService,
		creditService:     creditService,
		settlementService: settlementService,
		receiptService:    receiptService,
		sweeperService:    sweeperService,
		users:             users,
		tokens:            tokens,
		config:            config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Preflight requests would otherwise miss every method-scoped route and
	// skip the middleware chain entirely. CORSMiddleware answers them.
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	// Card webhook sits outside the rate-limited subrouter: the provider
	// controls delivery volume and must never be throttled into redelivery
	// storms.
	s.router.HandleFunc("/card-webhook", s.handleCardWebhook).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
	api.Use(RateLimitMiddleware(rateLimiter))

	api.HandleFunc("/auth", s.handleAuth).Methods("POST")

	api.HandleFunc("/permissions", s.handleCreatePermission).Methods("POST")
	api.HandleFunc("/permissions/revoke", s.handleRevokePermission).Methods("POST")
	api.HandleFunc("/permissions", s.handleListPermissions).Methods("GET")

	requireAuth := AuthMiddleware(s.tokens)
	api.Handle("/credits", requireAuth(http.HandlerFunc(s.handleGetCredits))).Methods("GET")
	api.Handle("/credits", requireAuth(http.HandlerFunc(s.handleCreateCredit))).Methods("POST")

	api.HandleFunc("/receipts", s.handleListReceipts).Methods("GET")

	api.HandleFunc("/process-recurring-credits", s.handleProcessRecurring).Methods("POST")
	api.HandleFunc("/process-recurring-credits", s.handlePreviewRecurring).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pagent-credits",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}
