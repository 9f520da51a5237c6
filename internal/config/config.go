package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	LogLevel string

	JWTSecret string
	FXURL     string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	AlertEmail   string

	// Optional CSV exports imported once at startup (empty = skip)
	TransactionsCSV     string
	SalesInvoicesCSV    string
	PurchaseInvoicesCSV string

	// Debt policy constants (business-given, not derived)
	DebtPrincipal       float64
	DebtAnnualRate      float64
	DebtMonthlyInterest float64

	// Annualized inflation assumption applied as a linear drift
	InflationRate float64

	// Hard ceiling beyond which no projection is produced
	MaxForecastDate time.Time
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBConn:       getEnv("DB_CONN", "host=localhost port=5432 user=test password=test dbname=cashflow sslmode=disable"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", "secret"),
		FXURL:        getEnv("FX_URL", "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"),
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "25"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "treasury@localhost"),
		AlertEmail:   getEnv("ALERT_EMAIL", ""),

		TransactionsCSV:     getEnv("TRANSACTIONS_CSV", ""),
		SalesInvoicesCSV:    getEnv("SALES_INVOICES_CSV", ""),
		PurchaseInvoicesCSV: getEnv("PURCHASE_INVOICES_CSV", ""),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	cfg.DebtPrincipal, err = getEnvFloat("DEBT_PRINCIPAL", 20_000_000)
	if err != nil {
		return nil, err
	}
	// Euribor 3M estimate plus the contractual 1.2% spread
	cfg.DebtAnnualRate, err = getEnvFloat("DEBT_ANNUAL_RATE", 0.047)
	if err != nil {
		return nil, err
	}
	cfg.DebtMonthlyInterest, err = getEnvFloat("DEBT_MONTHLY_INTEREST", cfg.DebtPrincipal*cfg.DebtAnnualRate/12)
	if err != nil {
		return nil, err
	}

	cfg.InflationRate, err = getEnvFloat("INFLATION_RATE", 0.02)
	if err != nil {
		return nil, err
	}

	maxDate := getEnv("MAX_FORECAST_DATE", "2025-03-31")
	cfg.MaxForecastDate, err = time.Parse("2006-01-02", maxDate)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FORECAST_DATE %q: %w", maxDate, err)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
