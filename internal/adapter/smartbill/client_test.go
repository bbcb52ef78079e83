package smartbill

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(vat string) usecase.ProviderInvoiceRequest {
	return usecase.ProviderInvoiceRequest{
		CompanyTaxID: "RO12345678",
		SeriesName:   "KOF",
		Client: usecase.ProviderClient{
			Name:      "Gastro SRL",
			VATNumber: vat,
			Address:   "Str. Principala 1",
			City:      "Cluj-Napoca",
			County:    "Cluj",
			Country:   "Romania",
		},
		IssueDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC),
		Currency:  "EUR",
		Lines: []usecase.ProviderLine{
			{Name: "Chef knife", Code: "CK-01", Unit: "buc", Quantity: 1, Price: decimal.RequireFromString("124.98"), TaxRate: decimal.Zero},
		},
	}
}

func TestCreateInvoiceSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/invoice", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"series":"KOF","number":"1042","documentId":"doc-1","url":"https://x/pdf"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "user@kitchenoff.ro", Token: "tok"})
	res, err := c.CreateInvoice(context.Background(), testRequest("RO998877"))
	require.NoError(t, err)

	assert.Equal(t, "KOF", res.Series)
	assert.Equal(t, "1042", res.Number)
	assert.Equal(t, "doc-1", res.ProviderID)

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user@kitchenoff.ro:tok"))
	assert.Equal(t, wantAuth, gotAuth)

	client := gotBody["client"].(map[string]any)
	assert.Equal(t, "RO998877", client["vatCode"])
	assert.Equal(t, "2025-03-14", gotBody["issueDate"])
}

func TestCreateInvoiceOmitsBlankVATCode(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"series":"KOF","number":"1"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
	_, err := c.CreateInvoice(context.Background(), testRequest("   "))
	require.NoError(t, err)

	client := gotBody["client"].(map[string]any)
	_, present := client["vatCode"]
	assert.False(t, present, "blank vatCode must be omitted entirely, got %v", client)
}

func TestCreateInvoiceProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorText":"seria nu exista"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
	_, err := c.CreateInvoice(context.Background(), testRequest(""))
	require.Error(t, err)

	var pie *usecase.ProviderInvocationError
	require.True(t, errors.As(err, &pie), "want ProviderInvocationError, got %T", err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Contains(t, perr.RawBody, "seria nu exista")
}

func TestCreateInvoiceErrorTextInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errorText":"client invalid"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
	_, err := c.CreateInvoice(context.Background(), testRequest(""))
	require.Error(t, err)

	var pie *usecase.ProviderInvocationError
	assert.True(t, errors.As(err, &pie))
}

func TestIsInvoicePaid(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"paid in full", 200, `{"invoiceTotalAmount":124.98,"paidAmount":124.98}`, true},
		{"partially paid", 200, `{"invoiceTotalAmount":124.98,"paidAmount":50}`, false},
		{"server error reads as unpaid", 500, `boom`, false},
		{"garbage reads as unpaid", 200, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
			assert.Equal(t, tt.want, c.IsInvoicePaid(context.Background(), "RO1", "KOF", "1042"))
		})
	}
}

func TestIsInvoicePaidNeverPanicsOnDeadServer(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Username: "u", Token: "t", Timeout: 500 * time.Millisecond})
	assert.False(t, c.IsInvoicePaid(context.Background(), "RO1", "KOF", "1042"))
}

func TestGetInvoicePDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoice/pdf", r.URL.Path)
		assert.Equal(t, "RO1", r.URL.Query().Get("cif"))
		assert.Equal(t, "KOF", r.URL.Query().Get("seriesname"))
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
	pdf, err := c.GetInvoicePDF(context.Background(), "RO1", "KOF", "1042")
	require.NoError(t, err)
	assert.Contains(t, string(pdf), "%PDF")
}

func TestSendInvoiceByEmailFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/document/send", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorText":"bad credentials"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Username: "u", Token: "t"})
	err := c.SendInvoiceByEmail(context.Background(), "RO1", "KOF", "1042", "ana@example.com", "Invoice", "attached")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}
