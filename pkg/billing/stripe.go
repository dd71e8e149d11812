package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultStripeBaseURL = "https://api.stripe.com/v1"

// Subscription is the slice of a processor subscription the app cares about.
type Subscription struct {
	ID               string
	PriceAmount      int64
	CurrentPeriodEnd time.Time
}

// Client speaks the payment processor's REST API (Stripe-compatible,
// form-encoded requests, JSON responses).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a processor client from a secret API key.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key required")
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultStripeBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// WithBaseURL overrides the API endpoint (tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return c
}

// FindCustomerByEmail returns the first customer with the given email.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")
	var resp listResponse[customer]
	if err := c.do(ctx, http.MethodGet, "/customers?"+q.Encode(), nil, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Data) == 0 {
		return "", false, nil
	}
	return resp.Data[0].ID, true, nil
}

// CreateCustomer registers a new customer for the email.
func (c *Client) CreateCustomer(ctx context.Context, email string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	var resp customer
	if err := c.do(ctx, http.MethodPost, "/customers", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ActiveSubscription returns the customer's active subscription, if any.
func (c *Client) ActiveSubscription(ctx context.Context, customerID string) (Subscription, bool, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "active")
	q.Set("limit", "1")
	var resp listResponse[subscription]
	if err := c.do(ctx, http.MethodGet, "/subscriptions?"+q.Encode(), nil, &resp); err != nil {
		return Subscription{}, false, err
	}
	if len(resp.Data) == 0 {
		return Subscription{}, false, nil
	}
	sub := resp.Data[0]
	out := Subscription{
		ID:               sub.ID,
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if len(sub.Items.Data) > 0 {
		out.PriceAmount = sub.Items.Data[0].Price.UnitAmount
	}
	return out, true, nil
}

// CheckoutParams configures a hosted checkout session.
type CheckoutParams struct {
	CustomerID  string
	Currency    string
	UnitAmount  int64
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// CreateCheckoutSession opens a subscription checkout and returns its URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	if p.CustomerID == "" {
		return "", fmt.Errorf("customer required")
	}
	currency := p.Currency
	if currency == "" {
		currency = "eur"
	}
	form := url.Values{}
	form.Set("customer", p.CustomerID)
	form.Set("mode", "subscription")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.UnitAmount, 10))
	form.Set("line_items[0][price_data][recurring][interval]", "month")
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	var resp session
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// CreatePortalSession opens a billing portal session and returns its URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("customer required")
	}
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)
	var resp session
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("stripe api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("stripe api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stripe response types.

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type subscription struct {
	ID               string `json:"id"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				UnitAmount int64 `json:"unit_amount"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
