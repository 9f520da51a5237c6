package fx

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avelot/cashflow-service/internal/config"
	"github.com/avelot/cashflow-service/internal/forecast"
	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

// Client retrieves EUR reference exchange rates from the ECB daily feed
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new FX rate client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.FXURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// fetch downloads the raw rate feed
func (c *Client) fetch() ([]byte, error) {
	req, err := http.NewRequest("GET", c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	// Log the raw XML response for debugging
	c.log.Debugf("ECB XML response: %s", string(body))

	return body, nil
}

// parseRates extracts the USD and JPY reference rates from the ECB XML.
// The feed quotes units-per-EUR; the table stores EUR-per-unit, so each
// rate is inverted.
func (c *Client) parseRates(rawBody []byte) (forecast.RateTable, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %v", err)
	}

	rates := forecast.RateTable{"EUR": 1.0}
	cubes := doc.FindElements("//Cube[@currency]")
	if len(cubes) == 0 {
		return nil, fmt.Errorf("no rate data found in XML")
	}

	for _, cube := range cubes {
		currency := cube.SelectAttrValue("currency", "")
		if currency != "USD" && currency != "JPY" {
			continue
		}
		quoted, err := strconv.ParseFloat(cube.SelectAttrValue("rate", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s rate: %v", currency, err)
		}
		if quoted <= 0 {
			return nil, fmt.Errorf("non-positive %s rate in feed: %f", currency, quoted)
		}
		rates[currency] = 1.0 / quoted
	}

	if _, ok := rates["USD"]; !ok {
		return nil, fmt.Errorf("USD rate missing from feed")
	}
	if _, ok := rates["JPY"]; !ok {
		return nil, fmt.Errorf("JPY rate missing from feed")
	}

	return rates, nil
}

// GetRates retrieves the current rate table, falling back to the hardcoded
// default table on any transport or parse failure. The forecast must run
// even when the feed is down, so this never returns an error.
func (c *Client) GetRates() forecast.RateTable {
	body, err := c.fetch()
	if err != nil {
		c.log.Warnf("FX rate retrieval failed, using fallback table: %v", err)
		return forecast.DefaultRateTable()
	}

	rates, err := c.parseRates(body)
	if err != nil {
		c.log.Warnf("FX rate parsing failed, using fallback table: %v", err)
		return forecast.DefaultRateTable()
	}

	c.log.Infof("Retrieved FX rates: USD=%.4f JPY=%.6f (EUR per unit)", rates["USD"], rates["JPY"])
	return rates
}
