package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/avelot/cashflow-service/internal/config"
	"github.com/avelot/cashflow-service/internal/csvdata"
	"github.com/avelot/cashflow-service/internal/handler"
	"github.com/avelot/cashflow-service/internal/integrations/fx"
	"github.com/avelot/cashflow-service/internal/middleware"
	"github.com/avelot/cashflow-service/internal/models"
	"github.com/avelot/cashflow-service/internal/repository"
	"github.com/avelot/cashflow-service/internal/service"
	"github.com/avelot/cashflow-service/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	fxClient := fx.NewClient(cfg, logger)
	mailer := email.NewSender(cfg, logger)
	svc := service.NewService(repo, fxClient, mailer, logger, cfg)
	h := handler.NewHandler(svc)

	// One-shot import of CSV exports when configured
	if err := importCSVData(cfg, svc, logger); err != nil {
		logger.Fatalf("Failed to import CSV data: %v", err)
	}

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/rates", h.Rates).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/forecast", h.RunForecast).Methods("POST")
	authRouter.HandleFunc("/forecast/latest", h.LatestForecast).Methods("GET")

	// Nightly forecast refresh
	c := cron.New()
	if _, err := c.AddFunc("0 6 * * *", func() {
		if _, err := svc.RunForecast(context.Background(), time.Now().UTC()); err != nil {
			logger.Errorf("Scheduled forecast failed: %v", err)
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule forecast refresh: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

// importCSVData loads the accounting-system CSV exports named in the
// configuration and persists them. Paths left empty are skipped.
func importCSVData(cfg *config.Config, svc *service.Service, logger *logrus.Logger) error {
	loader := csvdata.NewLoader(logger)

	if cfg.TransactionsCSV != "" {
		transactions, err := loader.LoadTransactions(cfg.TransactionsCSV)
		if err != nil {
			return err
		}
		if err := svc.ImportTransactions(transactions); err != nil {
			return err
		}
	}
	for _, src := range []struct{ path, kind string }{
		{cfg.SalesInvoicesCSV, models.InvoiceKindSales},
		{cfg.PurchaseInvoicesCSV, models.InvoiceKindPurchase},
	} {
		if src.path == "" {
			continue
		}
		invoices, err := loader.LoadInvoices(src.path, src.kind)
		if err != nil {
			return err
		}
		if err := svc.ImportInvoices(invoices); err != nil {
			return err
		}
	}
	return nil
}
