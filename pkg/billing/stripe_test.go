package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestFindCustomerByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("email"); got != "jean@example.com" {
			t.Fatalf("unexpected email %q", got)
		}
		w.Write([]byte(`{"data":[{"id":"cus_123","email":"jean@example.com"}]}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	id, found, err := c.FindCustomerByEmail(context.Background(), "jean@example.com")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if !found || id != "cus_123" {
		t.Fatalf("expected cus_123, got %q found=%v", id, found)
	}
}

func TestFindCustomerByEmailNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	_, found, err := c.FindCustomerByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if found {
		t.Fatalf("expected customer to be absent")
	}
}

func TestCreateCustomerSendsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/customers" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("email"); got != "jean@example.com" {
			t.Fatalf("unexpected email %q", got)
		}
		w.Write([]byte(`{"id":"cus_new"}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	id, err := c.CreateCustomer(context.Background(), "jean@example.com")
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if id != "cus_new" {
		t.Fatalf("expected cus_new, got %q", id)
	}
}

func TestActiveSubscriptionExtractsPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "active" {
			t.Fatalf("unexpected status filter %q", got)
		}
		w.Write([]byte(`{"data":[{"id":"sub_1","current_period_end":1767225600,"items":{"data":[{"price":{"unit_amount":999}}]}}]}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	sub, found, err := c.ActiveSubscription(context.Background(), "cus_123")
	if err != nil {
		t.Fatalf("active subscription: %v", err)
	}
	if !found {
		t.Fatalf("expected an active subscription")
	}
	if sub.PriceAmount != 999 {
		t.Fatalf("expected unit amount 999, got %d", sub.PriceAmount)
	}
	if sub.CurrentPeriodEnd.Year() != 2026 {
		t.Fatalf("unexpected period end %v", sub.CurrentPeriodEnd)
	}
}

func TestCreateCheckoutSessionReturnsURL(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		form = r.PostForm
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.example.com/cs_1"}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	got, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		CustomerID:  "cus_123",
		UnitAmount:  999,
		ProductName: "EduKeeper Premium",
		SuccessURL:  "https://app.example.com/ok",
		CancelURL:   "https://app.example.com/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if got != "https://checkout.example.com/cs_1" {
		t.Fatalf("unexpected url %q", got)
	}
	if form.Get("mode") != "subscription" {
		t.Fatalf("expected subscription mode, got %q", form.Get("mode"))
	}
	if form.Get("line_items[0][price_data][unit_amount]") != "999" {
		t.Fatalf("unexpected unit amount %q", form.Get("line_items[0][price_data][unit_amount]"))
	}
	if form.Get("line_items[0][price_data][currency]") != "eur" {
		t.Fatalf("expected default currency eur")
	}
}

func TestCreatePortalSessionReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/billing_portal/sessions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"bps_1","url":"https://portal.example.com/bps_1"}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	got, err := c.CreatePortalSession(context.Background(), "cus_123", "https://app.example.com/account")
	if err != nil {
		t.Fatalf("create portal: %v", err)
	}
	if got != "https://portal.example.com/bps_1" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestAPIErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"card declined","type":"card_error"}}`))
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL)
	_, err := c.CreateCustomer(context.Background(), "jean@example.com")
	if err == nil {
		t.Fatalf("expected api error")
	}
	if got := err.Error(); got != "stripe api error: card declined" {
		t.Fatalf("unexpected error %q", got)
	}
}

func mustClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient("sk_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c.WithBaseURL(baseURL)
}
