package email

import (
	"fmt"
	"net/smtp"

	"github.com/avelot/cashflow-service/internal/config"
	"github.com/avelot/cashflow-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendRiskAlert notifies the treasury contact that a forecast run contains
// critical days
func (s *Sender) SendRiskAlert(to string, run *models.ForecastRun) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Cash Flow Forecast - Critical Risk Alert"

	body := fmt.Sprintf(
		"The forecast run covering %s to %s contains %d critical day(s).\n\n"+
			"Final balance: %.2f EUR (net of debt: %.2f EUR)\n"+
			"Worst day: %s with a net-of-debt balance of %.2f EUR\n"+
			"Days at risk: %d warning, %d critical out of %d\n\n"+
			"Please review the liquidity position.\n",
		run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"),
		run.CriticalDays,
		run.FinalBalance, run.FinalBalanceNet,
		run.WorstDayDate.Format("2006-01-02"), run.WorstDayNet,
		run.WarningDays, run.CriticalDays, run.DaysCount,
	)
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	err := e.Send(addr, auth)
	if err != nil {
		s.logger.Errorf("Failed to send risk alert to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// SendForecastSummary sends the summary of a completed forecast run
func (s *Sender) SendForecastSummary(to string, run *models.ForecastRun) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Cash Flow Forecast - Daily Summary"

	body := fmt.Sprintf(
		"Forecast run %s completed.\n\n"+
			"Horizon: %s to %s (%d days)\n"+
			"Initial balance: %.2f EUR\n"+
			"Final balance: %.2f EUR (net of debt: %.2f EUR)\n"+
			"Risk zones: %d safe, %d warning, %d critical\n",
		run.ID,
		run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"), run.DaysCount,
		run.InitialBalance,
		run.FinalBalance, run.FinalBalanceNet,
		run.SafeDays, run.WarningDays, run.CriticalDays,
	)
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	err := e.Send(addr, auth)
	if err != nil {
		s.logger.Errorf("Failed to send forecast summary to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
