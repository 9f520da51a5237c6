// Package csvdata imports historical bank transactions and invoices from
// the CSV exports produced by the accounting system.
package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/avelot/cashflow-service/internal/models"
	"github.com/sirupsen/logrus"
)

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05"}

// Loader reads CSV data files, skipping malformed rows with a logged count
type Loader struct {
	log *logrus.Logger
}

// NewLoader creates a new CSV loader
func NewLoader(log *logrus.Logger) *Loader {
	return &Loader{log: log}
}

// LoadTransactions reads bank transactions from a CSV file with columns
// date,type,amount,currency,category.
func (l *Loader) LoadTransactions(path string) ([]models.Transaction, error) {
	records, err := l.readAll(path)
	if err != nil {
		return nil, err
	}

	cols, err := columnIndex(records[0], "date", "type", "amount", "currency", "category")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var transactions []models.Transaction
	skipped := 0
	for _, row := range records[1:] {
		if len(row) < len(records[0]) {
			skipped++
			continue
		}
		date, dateErr := parseDate(row[cols["date"]])
		amount, amountErr := strconv.ParseFloat(row[cols["amount"]], 64)
		if dateErr != nil || amountErr != nil {
			skipped++
			continue
		}
		transactions = append(transactions, models.Transaction{
			Date:     date,
			Type:     row[cols["type"]],
			Amount:   amount,
			Currency: row[cols["currency"]],
			Category: row[cols["category"]],
		})
	}
	if skipped > 0 {
		l.log.Warnf("Skipped %d malformed rows in %s", skipped, path)
	}
	return transactions, nil
}

// LoadInvoices reads invoices from a CSV file with columns
// status,issue_date,due_date,payment_date,amount,currency. Empty date
// cells become nil.
func (l *Loader) LoadInvoices(path, kind string) ([]models.Invoice, error) {
	records, err := l.readAll(path)
	if err != nil {
		return nil, err
	}

	cols, err := columnIndex(records[0], "status", "issue_date", "due_date", "payment_date", "amount", "currency")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var invoices []models.Invoice
	skipped := 0
	for _, row := range records[1:] {
		if len(row) < len(records[0]) {
			skipped++
			continue
		}
		amount, amountErr := strconv.ParseFloat(row[cols["amount"]], 64)
		if amountErr != nil {
			skipped++
			continue
		}
		invoices = append(invoices, models.Invoice{
			Kind:        kind,
			Status:      row[cols["status"]],
			IssueDate:   parseOptionalDate(row[cols["issue_date"]]),
			DueDate:     parseOptionalDate(row[cols["due_date"]]),
			PaymentDate: parseOptionalDate(row[cols["payment_date"]]),
			Amount:      amount,
			Currency:    row[cols["currency"]],
		})
	}
	if skipped > 0 {
		l.log.Warnf("Skipped %d malformed rows in %s", skipped, path)
	}
	return invoices, nil
}

func (l *Loader) readAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var records [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		records = append(records, row)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	return records, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return index, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

func parseOptionalDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := parseDate(value)
	if err != nil {
		return nil
	}
	return &t
}
