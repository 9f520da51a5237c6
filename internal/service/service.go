package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avelot/cashflow-service/internal/config"
	"github.com/avelot/cashflow-service/internal/forecast"
	"github.com/avelot/cashflow-service/internal/integrations/fx"
	"github.com/avelot/cashflow-service/internal/models"
	"github.com/avelot/cashflow-service/internal/repository"
	"github.com/avelot/cashflow-service/internal/utils/email"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Service handles business logic
type Service struct {
	repo   *repository.Repository
	fx     *fx.Client
	mailer *email.Sender
	log    *logrus.Logger
	config *config.Config
}

// NewService initializes a new service
func NewService(repo *repository.Repository, fxClient *fx.Client, mailer *email.Sender, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{repo: repo, fx: fxClient, mailer: mailer, log: log, config: cfg}
}

// Register creates a new user with hashed password
func (s *Service) Register(username, email, password string) (*models.User, error) {
	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.repo.CreateUser(user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(email, password string) (string, error) {
	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	// Generate JWT
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// RunForecast loads the historical snapshot, derives the statistical
// parameters, runs the daily projection engine and persists the result.
func (s *Service) RunForecast(ctx context.Context, startDate time.Time) (*forecast.Result, error) {
	if startDate.IsZero() {
		return nil, fmt.Errorf("start date is required")
	}

	transactions, err := s.repo.ListTransactions()
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	sales, err := s.repo.ListInvoices(models.InvoiceKindSales)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales invoices: %w", err)
	}
	purchase, err := s.repo.ListInvoices(models.InvoiceKindPurchase)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase invoices: %w", err)
	}

	rates := s.fx.GetRates()

	stats := forecast.ComputeDailyStats(transactions, rates)
	weeklyCredit, weeklyDebit := forecast.ComputeWeeklyPatterns(transactions, rates)

	policy := forecast.DebtPolicy{
		Principal:       s.config.DebtPrincipal,
		AnnualRate:      s.config.DebtAnnualRate,
		MonthlyInterest: s.config.DebtMonthlyInterest,
	}
	engine := forecast.NewEngine(transactions, sales, purchase, rates, policy, s.log)

	result := engine.Run(forecast.Params{
		StartDate:              startDate,
		MaxForecastDate:        s.config.MaxForecastDate,
		DSOMean:                forecast.ComputeDSO(sales),
		DPOMean:                forecast.ComputeDPO(purchase),
		AvgDailyCredit:         stats.AvgDailyCredit,
		AvgDailyDebit:          stats.AvgDailyDebit,
		StdDailyCredit:         stats.StdDailyCredit,
		StdDailyDebit:          stats.StdDailyDebit,
		WeeklyCreditPattern:    weeklyCredit,
		WeeklyDebitPattern:     weeklyDebit,
		InflationRate:          s.config.InflationRate,
		VolumeVolatilityCredit: relativeVolatility(stats.AvgDailyCredit, stats.StdDailyCredit, 0),
		VolumeVolatilityDebit:  relativeVolatility(stats.AvgDailyDebit, stats.StdDailyDebit, 0),
	})

	if result.Reconciled {
		s.log.Warnf("Forecast run required end-of-run reconciliation (start=%s)", result.StartDate.Format("2006-01-02"))
	}

	run := &models.ForecastRun{
		ID:              uuid.NewString(),
		StartDate:       result.StartDate,
		EndDate:         result.EndDate,
		DaysCount:       result.DaysCount,
		InitialBalance:  result.InitialBalance,
		FinalBalance:    result.FinalBalance,
		FinalBalanceNet: result.FinalBalanceNet,
		SafeDays:        result.RiskZones.Safe,
		WarningDays:     result.RiskZones.Warning,
		CriticalDays:    result.RiskZones.Critical,
		WorstDayDate:    result.WorstDay.Date,
		WorstDayNet:     result.WorstDay.NetOfDebtEUR,
		Reconciled:      result.Reconciled,
	}
	if err := s.repo.SaveForecastRun(run, result.Records); err != nil {
		return nil, fmt.Errorf("failed to persist forecast run: %w", err)
	}

	s.log.Infof("Forecast run %s: %d days, final balance %.2f EUR (net %.2f)",
		run.ID, run.DaysCount, run.FinalBalance, run.FinalBalanceNet)

	if s.config.AlertEmail != "" {
		notify := s.mailer.SendForecastSummary
		if run.CriticalDays > 0 {
			notify = s.mailer.SendRiskAlert
		}
		if err := notify(s.config.AlertEmail, run); err != nil {
			s.log.Errorf("Failed to send forecast notification: %v", err)
		}
	}

	return result, nil
}

// ImportTransactions persists a batch of imported transactions, computing
// the EUR equivalent of each with the current rate table.
func (s *Service) ImportTransactions(transactions []models.Transaction) error {
	rates := s.fx.GetRates()
	for i := range transactions {
		transactions[i].AmountEUR = forecast.ConvertToEUR(transactions[i].Amount, transactions[i].Currency, rates)
	}
	if err := s.repo.SaveTransactions(transactions); err != nil {
		return err
	}
	s.log.Infof("Imported %d transactions", len(transactions))
	return nil
}

// ImportInvoices persists a batch of imported invoices
func (s *Service) ImportInvoices(invoices []models.Invoice) error {
	if err := s.repo.SaveInvoices(invoices); err != nil {
		return err
	}
	s.log.Infof("Imported %d invoices", len(invoices))
	return nil
}

// LatestForecast returns the most recent persisted run summary
func (s *Service) LatestForecast() (*models.ForecastRun, error) {
	return s.repo.GetLatestForecastRun()
}

// Rates returns the current resolved rate table
func (s *Service) Rates() forecast.RateTable {
	return s.fx.GetRates()
}

// relativeVolatility expresses the daily standard deviation as a fraction
// of the daily mean, with a default when no history exists.
func relativeVolatility(avg, std, fallback float64) float64 {
	if avg <= 0 {
		return fallback
	}
	return std / avg
}
