package sameday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/shopspring/decimal"
)

// Token expiry wire format used by the carrier.
const expiryLayout = "2006-01-02 15:04"

const defaultAuthCooldown = 5 * time.Minute

// CarrierAPIError is a non-2xx answer from a carrier endpoint.
type CarrierAPIError struct {
	Endpoint   string
	StatusCode int
	RawBody    string
}

func (e *CarrierAPIError) Error() string {
	return fmt.Sprintf("sameday: %s: status %d: %s", e.Endpoint, e.StatusCode, e.RawBody)
}

// AuthenticationError means the carrier rejected our credentials.
type AuthenticationError struct {
	StatusCode int
	RawBody    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("sameday: authentication failed: status %d: %s", e.StatusCode, e.RawBody)
}

type Config struct {
	BaseURL      string
	Username     string
	Password     string
	AuthCooldown time.Duration // default 5m
	Timeout      time.Duration
}

// Client talks to the Sameday carrier API. It caches the auth token until
// its expiry and enforces a cooldown between authentication attempts: the
// carrier rate-limits the auth endpoint aggressively and repeated rapid
// calls get the source IP banned. A call that needs to re-authenticate
// inside the cooldown window sleeps out the remainder first.
type Client struct {
	httpc    *http.Client
	baseURL  string
	username string
	password string
	cooldown time.Duration
	log      *slog.Logger

	mu              sync.Mutex
	token           string
	expiry          time.Time
	lastAuthAttempt time.Time

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	cooldown := cfg.AuthCooldown
	if cooldown == 0 {
		cooldown = defaultAuthCooldown
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpc:    &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		cooldown: cooldown,
		log:      logging.New("sameday"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type authResponse struct {
	Token    string `json:"token"`
	ExpireAt string `json:"expire_at"`
}

// authenticate acquires a fresh token. Callers hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	if !c.lastAuthAttempt.IsZero() {
		if wait := c.cooldown - c.now().Sub(c.lastAuthAttempt); wait > 0 {
			c.log.Info("auth cooldown active, waiting before re-authenticating", "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastAuthAttempt = c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/authenticate?remember_me=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-AUTH-USERNAME", c.username)
	req.Header.Set("X-AUTH-PASSWORD", c.password)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &AuthenticationError{RawBody: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthenticationError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}

	var ar authResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return &AuthenticationError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	expiry, err := time.ParseInLocation(expiryLayout, ar.ExpireAt, time.UTC)
	if err != nil {
		// Token still usable; assume a short lifetime.
		expiry = c.now().Add(30 * time.Minute)
	}

	c.token = ar.Token
	c.expiry = expiry
	c.log.Info("authenticated to carrier", "expiry", expiry)
	return nil
}

// ensureToken re-authenticates when the cached token is absent or within
// a minute of expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiry.Add(-time.Minute)) {
		return c.token, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// --- operations ---

type PickupPoint struct {
	ID      int    `json:"id"`
	Alias   string `json:"alias"`
	City    string `json:"city"`
	County  string `json:"county"`
	Address string `json:"address"`
	Default bool   `json:"defaultPickupPoint"`
}

func (c *Client) GetPickupPoints(ctx context.Context) ([]PickupPoint, error) {
	var out struct {
		Data []PickupPoint `json:"data"`
	}
	if err := c.get(ctx, "/api/client/pickup-points", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type Service struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"serviceCode"`
}

func (c *Client) GetServices(ctx context.Context) ([]Service, error) {
	var out struct {
		Data []Service `json:"data"`
	}
	if err := c.get(ctx, "/api/client/services", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type County struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

func (c *Client) GetCounties(ctx context.Context) ([]County, error) {
	var out struct {
		Data []County `json:"data"`
	}
	if err := c.get(ctx, "/api/geolocation/county", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type City struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	County     string `json:"county"`
	PostalCode string `json:"postalCode"`
}

// GetCities lists cities, optionally filtered by county id.
func (c *Client) GetCities(ctx context.Context, countyID string) ([]City, error) {
	q := url.Values{}
	if countyID != "" {
		q.Set("county", countyID)
	}
	var out struct {
		Data []City `json:"data"`
	}
	if err := c.get(ctx, "/api/geolocation/city", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type AWBRecipient struct {
	Name       string `json:"name"`
	Phone      string `json:"phoneNumber"`
	Email      string `json:"email,omitempty"`
	County     string `json:"county"`
	City       string `json:"city"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode,omitempty"`
}

type AWBParcel struct {
	Weight decimal.Decimal `json:"weight"`
	Width  int             `json:"width,omitempty"`
	Length int             `json:"length,omitempty"`
	Height int             `json:"height,omitempty"`
}

type AWBRequest struct {
	PickupPoint    string          `json:"pickupPoint"`
	Service        int             `json:"service"`
	PackageType    int             `json:"packageType"`
	Recipient      AWBRecipient    `json:"awbRecipient"`
	Parcels        []AWBParcel     `json:"parcels"`
	CashOnDelivery decimal.Decimal `json:"cashOnDelivery"`
	Observation    string          `json:"observation,omitempty"`
	ClientRef      string          `json:"clientInternalReference,omitempty"`
}

type AWBResult struct {
	AWBNumber     string   `json:"awbNumber"`
	ParcelNumbers []string `json:"parcelsNumbers"`
	Cost          decimal.Decimal
	Currency      string
}

func (c *Client) CreateAWB(ctx context.Context, req AWBRequest) (*AWBResult, error) {
	var out struct {
		AWBNumber string `json:"awbNumber"`
		Parcels   []struct {
			AWBParcelNumber string `json:"awbParcelNumber"`
		} `json:"parcels"`
		AWBCost struct {
			Cost     float64 `json:"cost"`
			Currency string  `json:"currency"`
		} `json:"awbCost"`
	}
	if err := c.post(ctx, "/api/awb", req, &out); err != nil {
		return nil, err
	}
	res := &AWBResult{
		AWBNumber: out.AWBNumber,
		Cost:      decimal.NewFromFloat(out.AWBCost.Cost),
		Currency:  out.AWBCost.Currency,
	}
	for _, p := range out.Parcels {
		res.ParcelNumbers = append(res.ParcelNumbers, p.AWBParcelNumber)
	}
	return res, nil
}

// GetAWBLabel fetches the printable label PDF.
func (c *Client) GetAWBLabel(ctx context.Context, awbNumber string) ([]byte, error) {
	return c.getBinary(ctx, "/api/awb/download/"+awbNumber+"/A4")
}

type TrackingEvent struct {
	Status   string `json:"status"`
	StatusID int    `json:"statusId"`
	County   string `json:"county"`
	Date     string `json:"statusDate"`
}

type TrackingResult struct {
	AWBNumber string
	History   []TrackingEvent
}

func (c *Client) TrackAWB(ctx context.Context, awbNumber string) (*TrackingResult, error) {
	var out struct {
		History []TrackingEvent `json:"expeditionHistory"`
	}
	if err := c.get(ctx, "/api/client/awb/"+awbNumber+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &TrackingResult{AWBNumber: awbNumber, History: out.History}, nil
}

// --- transport ---

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) getBinary(ctx context.Context, path string) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-AUTH-TOKEN", token)
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
		return nil, &CarrierAPIError{Endpoint: path, StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	return raw, nil
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	token, err := c.ensureToken(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("X-AUTH-TOKEN", token)
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
		return &CarrierAPIError{Endpoint: endpoint, StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
