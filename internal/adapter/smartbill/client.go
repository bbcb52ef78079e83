package smartbill

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
)

const dateLayout = "2006-01-02"

// ProviderError is a non-2xx answer from the Smartbill API.
type ProviderError struct {
	StatusCode int
	RawBody    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("smartbill: status %d: %s", e.StatusCode, e.RawBody)
}

type Config struct {
	BaseURL  string // e.g. https://ws.smartbill.ro/SBORO/api
	Username string
	Token    string
	Timeout  time.Duration
}

// Client is a thin wrapper over the Smartbill HTTP API. Credentials are
// fixed at construction; every operation is a single attempt with no
// retry. Fallback policy belongs to the caller.
type Client struct {
	httpc    *http.Client
	baseURL  string
	username string
	token    string
	log      *slog.Logger
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpc:    &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		token:    cfg.Token,
		log:      logging.New("smartbill"),
	}
}

var _ usecase.InvoicingProvider = (*Client)(nil)

// --- wire types ---

// clientPayload omits empty tax fields entirely: Smartbill treats an
// empty vatCode string as a validation error distinct from an absent one.
type clientPayload struct {
	Name    string `json:"name"`
	VATCode string `json:"vatCode,omitempty"`
	RegCode string `json:"regCom,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	County  string `json:"county,omitempty"`
	Country string `json:"country,omitempty"`
	SaveToDB bool  `json:"saveToDb"`
}

type productPayload struct {
	Name              string  `json:"name"`
	Code              string  `json:"code,omitempty"`
	MeasuringUnitName string  `json:"measuringUnitName"`
	Currency          string  `json:"currency"`
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price"`
	TaxName           string  `json:"taxName"`
	TaxPercentage     float64 `json:"taxPercentage"`
	IsTaxIncluded     bool    `json:"isTaxIncluded"`
}

type createInvoicePayload struct {
	CompanyVATCode string           `json:"companyVatCode"`
	SeriesName     string           `json:"seriesName"`
	IssueDate      string           `json:"issueDate"`
	DueDate        string           `json:"dueDate"`
	IsDraft        bool             `json:"isDraft"`
	Client         clientPayload    `json:"client"`
	Products       []productPayload `json:"products"`
}

type createInvoiceResponse struct {
	Series    string `json:"series"`
	Number    string `json:"number"`
	DocumentID string `json:"documentId"`
	URL       string `json:"url"`
	Message   string `json:"message"`
	ErrorText string `json:"errorText"`
}

// CreateInvoice registers the invoice with Smartbill. A provider-side
// rejection comes back as *usecase.ProviderInvocationError wrapping a
// *ProviderError, which is the signal the orchestrator falls back on.
func (c *Client) CreateInvoice(ctx context.Context, req usecase.ProviderInvoiceRequest) (*usecase.ProviderInvoiceResult, error) {
	payload := createInvoicePayload{
		CompanyVATCode: req.CompanyTaxID,
		SeriesName:     req.SeriesName,
		IssueDate:      req.IssueDate.Format(dateLayout),
		DueDate:        req.DueDate.Format(dateLayout),
		Client: clientPayload{
			Name:    req.Client.Name,
			VATCode: strings.TrimSpace(req.Client.VATNumber),
			RegCode: strings.TrimSpace(req.Client.RegNumber),
			Email:   req.Client.Email,
			Address: req.Client.Address,
			City:    req.Client.City,
			County:  req.Client.County,
			Country: req.Client.Country,
		},
	}
	for _, l := range req.Lines {
		payload.Products = append(payload.Products, productPayload{
			Name:              l.Name,
			Code:              l.Code,
			MeasuringUnitName: l.Unit,
			Currency:          req.Currency,
			Quantity:          l.Quantity,
			Price:             l.Price.InexactFloat64(),
			TaxName:           "Taxare inversa",
			TaxPercentage:     l.TaxRate.InexactFloat64(),
		})
	}

	var out createInvoiceResponse
	if err := c.postJSON(ctx, "/invoice", payload, &out); err != nil {
		return nil, &usecase.ProviderInvocationError{Op: "CreateInvoice", Err: err}
	}
	if out.ErrorText != "" {
		return nil, &usecase.ProviderInvocationError{
			Op:  "CreateInvoice",
			Err: &ProviderError{StatusCode: http.StatusOK, RawBody: out.ErrorText},
		}
	}

	return &usecase.ProviderInvoiceResult{
		Series:     out.Series,
		Number:     out.Number,
		ProviderID: out.DocumentID,
		PDFLink:    out.URL,
	}, nil
}

// GetInvoicePDF fetches the rendered document.
func (c *Client) GetInvoicePDF(ctx context.Context, taxID, series, number string) ([]byte, error) {
	q := url.Values{"cif": {taxID}, "seriesname": {series}, "number": {number}}
	body, err := c.getRaw(ctx, "/invoice/pdf", q)
	if err != nil {
		return nil, err
	}
	return body, nil
}

type paymentStatusResponse struct {
	InvoiceTotalAmount float64 `json:"invoiceTotalAmount"`
	PaidAmount         float64 `json:"paidAmount"`
}

// IsInvoicePaid never fails. Any transport or API error is reported as
// "not paid"; the distinction is kept visible in the logs because the
// caller cannot tell a failed check from a genuinely unpaid invoice.
func (c *Client) IsInvoicePaid(ctx context.Context, taxID, series, number string) bool {
	q := url.Values{"cif": {taxID}, "seriesname": {series}, "number": {number}}
	raw, err := c.getRaw(ctx, "/invoice/paymentstatus", q)
	if err != nil {
		c.log.Warn("payment-status check failed, reporting unpaid",
			"series", series, "number", number, "err", err)
		return false
	}
	var st paymentStatusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		c.log.Warn("payment-status decode failed, reporting unpaid",
			"series", series, "number", number, "err", err)
		return false
	}
	return st.InvoiceTotalAmount > 0 && st.PaidAmount >= st.InvoiceTotalAmount
}

// CancelInvoice voids the document at the provider.
func (c *Client) CancelInvoice(ctx context.Context, taxID, series, number string) error {
	q := url.Values{"cif": {taxID}, "seriesname": {series}, "number": {number}}
	u := c.baseURL + "/invoice/cancel?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

type sendEmailPayload struct {
	CompanyVATCode string `json:"companyVatCode"`
	SeriesName     string `json:"seriesName"`
	Number         string `json:"number"`
	Type           string `json:"type"`
	To             string `json:"to"`
	Subject        string `json:"subject"`
	BodyText       string `json:"bodyText"`
}

func (c *Client) SendInvoiceByEmail(ctx context.Context, taxID, series, number, to, subject, body string) error {
	payload := sendEmailPayload{
		CompanyVATCode: taxID,
		SeriesName:     series,
		Number:         number,
		Type:           "factura",
		To:             to,
		Subject:        subject,
		BodyText:       body,
	}
	return c.postJSON(ctx, "/document/send", payload, nil)
}

type Series struct {
	Name    string `json:"name"`
	NextNum string `json:"nextNumber"`
	Type    string `json:"type"`
}

// ListSeries returns the configured document series.
func (c *Client) ListSeries(ctx context.Context) ([]Series, error) {
	raw, err := c.getRaw(ctx, "/series", url.Values{"type": {"f"}})
	if err != nil {
		return nil, err
	}
	var out struct {
		List []Series `json:"list"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

type VATRate struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// GetVATRates returns the tax rates configured for the company.
func (c *Client) GetVATRates(ctx context.Context) ([]VATRate, error) {
	raw, err := c.getRaw(ctx, "/tax", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Taxes []VATRate `json:"taxes"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Taxes, nil
}

// --- transport ---

func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.username+":"+c.token))
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader())
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	return raw, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
