package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"edukeeper/pkg/billing"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/store"
)

type fakePayments struct {
	customers     map[string]string // email -> customer id
	subscriptions map[string]billing.Subscription
	createdEmails []string
	checkoutURL   string
	portalURL     string
	lastCheckout  billing.CheckoutParams
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		customers:     make(map[string]string),
		subscriptions: make(map[string]billing.Subscription),
		checkoutURL:   "https://checkout.example.com/session",
		portalURL:     "https://portal.example.com/session",
	}
}

func (f *fakePayments) FindCustomerByEmail(_ context.Context, email string) (string, bool, error) {
	id, ok := f.customers[email]
	return id, ok, nil
}

func (f *fakePayments) CreateCustomer(_ context.Context, email string) (string, error) {
	id := "cus_" + email
	f.customers[email] = id
	f.createdEmails = append(f.createdEmails, email)
	return id, nil
}

func (f *fakePayments) ActiveSubscription(_ context.Context, customerID string) (billing.Subscription, bool, error) {
	sub, ok := f.subscriptions[customerID]
	return sub, ok, nil
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, p billing.CheckoutParams) (string, error) {
	f.lastCheckout = p
	return f.checkoutURL, nil
}

func (f *fakePayments) CreatePortalSession(_ context.Context, _, _ string) (string, error) {
	return f.portalURL, nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject+"|"+body)
	return nil
}

func newBillingApp(t *testing.T, payments *fakePayments, mailer *fakeMailer) (*App, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	a, err := New(Config{
		Store:         memStore,
		Payments:      payments,
		Mailer:        mailer,
		InterestEmail: "equipe@edukeeper.example",
		SuccessURL:    "https://app.example.com/ok",
		CancelURL:     "https://app.example.com/cancel",
		PortalURL:     "https://app.example.com/account",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memStore
}

func testUser(created time.Time) domain.User {
	return domain.User{
		ID:        "user-1",
		Email:     "jean@example.com",
		CreatedAt: created,
	}
}

func TestCheckSubscriptionActive(t *testing.T) {
	payments := newFakePayments()
	payments.customers["jean@example.com"] = "cus_1"
	periodEnd := time.Now().UTC().Add(20 * 24 * time.Hour).Truncate(time.Second)
	payments.subscriptions["cus_1"] = billing.Subscription{ID: "sub_1", PriceAmount: 999, CurrentPeriodEnd: periodEnd}
	a, memStore := newBillingApp(t, payments, nil)

	state, err := a.CheckSubscription(context.Background(), testUser(time.Now().UTC().AddDate(0, -6, 0)))
	if err != nil {
		t.Fatalf("check subscription: %v", err)
	}
	if state.Status != "active" || state.Tier != "famille" {
		t.Fatalf("expected active famille, got %+v", state)
	}
	sub, ok, _ := memStore.GetSubscriber("user-1")
	if !ok || !sub.Subscribed || sub.Tier != "famille" {
		t.Fatalf("subscriber row not cached: %+v", sub)
	}
}

func TestCheckSubscriptionTrialing(t *testing.T) {
	a, memStore := newBillingApp(t, newFakePayments(), nil)

	state, err := a.CheckSubscription(context.Background(), testUser(time.Now().UTC().AddDate(0, 0, -10)))
	if err != nil {
		t.Fatalf("check subscription: %v", err)
	}
	if state.Status != "trialing" {
		t.Fatalf("expected trialing, got %+v", state)
	}
	if state.TrialEnd == nil || !state.TrialEnd.After(time.Now().UTC()) {
		t.Fatalf("expected future trial end, got %+v", state.TrialEnd)
	}
	sub, ok, _ := memStore.GetSubscriber("user-1")
	if !ok || sub.Subscribed {
		t.Fatalf("expected unsubscribed row, got %+v", sub)
	}
	if !sub.Trialing(time.Now().UTC()) {
		t.Fatalf("cached row should report trialing")
	}
}

func TestCheckSubscriptionExpired(t *testing.T) {
	a, memStore := newBillingApp(t, newFakePayments(), nil)
	trialEnd := time.Now().UTC().AddDate(0, -1, 0)
	if err := memStore.UpsertSubscriber(domain.Subscriber{
		UserID:   "user-1",
		Email:    "jean@example.com",
		TrialEnd: &trialEnd,
	}); err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}

	state, err := a.CheckSubscription(context.Background(), testUser(time.Now().UTC().AddDate(0, -2, 0)))
	if err != nil {
		t.Fatalf("check subscription: %v", err)
	}
	if state.Status != "expired" {
		t.Fatalf("expected expired, got %+v", state)
	}
}

func TestCheckSubscriptionTrialWindowSticks(t *testing.T) {
	a, memStore := newBillingApp(t, newFakePayments(), nil)
	user := testUser(time.Now().UTC().AddDate(0, -6, 0))

	first, err := a.CheckSubscription(context.Background(), user)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.Status != "trialing" || first.TrialEnd == nil {
		t.Fatalf("old account without a paid plan starts its trial at first check, got %+v", first)
	}

	second, err := a.CheckSubscription(context.Background(), user)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if second.TrialEnd == nil || !second.TrialEnd.Equal(*first.TrialEnd) {
		t.Fatalf("trial end moved between checks: %v vs %v", first.TrialEnd, second.TrialEnd)
	}
	sub, ok, _ := memStore.GetSubscriber("user-1")
	if !ok || sub.TrialEnd == nil || !sub.TrialEnd.Equal(*first.TrialEnd) {
		t.Fatalf("cached row should keep the first trial end, got %+v", sub)
	}
}

func TestCreateCheckoutCreatesCustomerOnce(t *testing.T) {
	payments := newFakePayments()
	a, _ := newBillingApp(t, payments, nil)
	user := testUser(time.Now().UTC())

	url, err := a.CreateCheckout(context.Background(), user, "premium")
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if url != payments.checkoutURL {
		t.Fatalf("unexpected url %q", url)
	}
	if len(payments.createdEmails) != 1 {
		t.Fatalf("expected one customer creation, got %v", payments.createdEmails)
	}
	if payments.lastCheckout.UnitAmount != 599 || payments.lastCheckout.ProductName != "EduKeeper Premium" {
		t.Fatalf("unexpected checkout params: %+v", payments.lastCheckout)
	}

	if _, err := a.CreateCheckout(context.Background(), user, "famille"); err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if len(payments.createdEmails) != 1 {
		t.Fatalf("customer should be reused, got %v", payments.createdEmails)
	}
}

func TestCreateCheckoutUnknownPlan(t *testing.T) {
	a, _ := newBillingApp(t, newFakePayments(), nil)
	if _, err := a.CreateCheckout(context.Background(), testUser(time.Now().UTC()), "platine"); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestCustomerPortalReturnsURL(t *testing.T) {
	payments := newFakePayments()
	payments.customers["jean@example.com"] = "cus_1"
	a, _ := newBillingApp(t, payments, nil)

	url, err := a.CustomerPortal(context.Background(), testUser(time.Now().UTC()))
	if err != nil {
		t.Fatalf("customer portal: %v", err)
	}
	if url != payments.portalURL {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestSendSubscriptionInterest(t *testing.T) {
	mailer := &fakeMailer{}
	a, _ := newBillingApp(t, newFakePayments(), mailer)
	user := testUser(time.Now().UTC())
	user.DisplayName = "Jean"

	a.SendSubscriptionInterest(context.Background(), user, "Je veux l'offre famille.")
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	if !strings.Contains(mailer.sent[0], "equipe@edukeeper.example") || !strings.Contains(mailer.sent[0], "jean@example.com") {
		t.Fatalf("unexpected mail: %q", mailer.sent[0])
	}
}

func TestSendSubscriptionInterestMailFailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("sendgrid down")}
	a, _ := newBillingApp(t, newFakePayments(), mailer)

	// Must not panic or surface; the interest is still recorded.
	a.SendSubscriptionInterest(context.Background(), testUser(time.Now().UTC()), "message")
	if len(mailer.sent) != 0 {
		t.Fatalf("failed send must not be recorded as sent")
	}
}
