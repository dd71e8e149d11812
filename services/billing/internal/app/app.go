package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edukeeper/pkg/billing"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/mail"
	"edukeeper/pkg/store"
)

var ErrUnknownPlan = errors.New("unknown plan")

// PaymentClient is the payment processor surface the app needs.
type PaymentClient interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCustomer(ctx context.Context, email string) (string, error)
	ActiveSubscription(ctx context.Context, customerID string) (billing.Subscription, bool, error)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Plan is a purchasable subscription tier.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UnitAmount int64  `json:"unitAmount"`
}

// Plans is the fixed tier catalog, matched back from processor prices by
// their unit amount.
func Plans() []Plan {
	return []Plan{
		{ID: "premium", Name: "EduKeeper Premium", UnitAmount: 599},
		{ID: "famille", Name: "EduKeeper Famille", UnitAmount: 999},
	}
}

func planByID(id string) (Plan, bool) {
	for _, p := range Plans() {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

func tierForAmount(amount int64) string {
	for _, p := range Plans() {
		if p.UnitAmount == amount {
			return p.ID
		}
	}
	return "premium"
}

// Config holds runtime configuration for the billing application.
type Config struct {
	DatabaseURL   string
	Store         store.Store
	Payments      PaymentClient
	StripeAPIKey  string
	Mailer        mail.Sender
	SendGridKey   string
	MailFromName  string
	MailFromEmail string
	InterestEmail string
	SuccessURL    string
	CancelURL     string
	PortalURL     string
	TrialDays     int
}

// App answers subscription state questions and drives checkout flows.
type App struct {
	store         store.Store
	payments      PaymentClient
	mailer        mail.Sender
	interestEmail string
	successURL    string
	cancelURL     string
	portalURL     string
	trialDays     int
}

// New constructs the billing application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	payments := cfg.Payments
	if payments == nil {
		client, err := billing.NewClient(cfg.StripeAPIKey)
		if err != nil {
			return nil, err
		}
		payments = client
	}
	mailer := cfg.Mailer
	if mailer == nil && cfg.SendGridKey != "" {
		var err error
		mailer, err = mail.NewSendGridSender(cfg.SendGridKey, cfg.MailFromName, cfg.MailFromEmail)
		if err != nil {
			return nil, err
		}
	}
	trialDays := cfg.TrialDays
	if trialDays <= 0 {
		trialDays = 30
	}
	return &App{
		store:         dataStore,
		payments:      payments,
		mailer:        mailer,
		interestEmail: cfg.InterestEmail,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		portalURL:     cfg.PortalURL,
		trialDays:     trialDays,
	}, nil
}

// UserByID resolves the authenticated subject to a full user record.
func (a *App) UserByID(id string) (domain.User, bool) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

// SubscriptionState is the answer to a subscription check.
type SubscriptionState struct {
	Status    string     `json:"status"` // active, trialing or expired
	Tier      string     `json:"tier,omitempty"`
	TrialEnd  *time.Time `json:"trialEnd,omitempty"`
	PeriodEnd *time.Time `json:"periodEnd,omitempty"`
}

// CheckSubscription resolves the user's current entitlement against the
// payment processor and caches the result as a subscriber row. Users
// without a paid subscription get a trial window opened on their first
// check.
func (a *App) CheckSubscription(ctx context.Context, user domain.User) (SubscriptionState, error) {
	now := time.Now().UTC()
	sub := domain.Subscriber{
		UserID:    user.ID,
		Email:     user.Email,
		UpdatedAt: now,
	}

	customerID, found, err := a.payments.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return SubscriptionState{}, fmt.Errorf("lookup customer: %w", err)
	}
	if found {
		sub.CustomerID = customerID
		active, ok, err := a.payments.ActiveSubscription(ctx, customerID)
		if err != nil {
			return SubscriptionState{}, fmt.Errorf("lookup subscription: %w", err)
		}
		if ok {
			sub.Subscribed = true
			sub.Tier = tierForAmount(active.PriceAmount)
			periodEnd := active.CurrentPeriodEnd
			sub.PeriodEnd = &periodEnd
			if err := a.store.UpsertSubscriber(sub); err != nil {
				return SubscriptionState{}, fmt.Errorf("save subscriber: %w", err)
			}
			return SubscriptionState{Status: "active", Tier: sub.Tier, PeriodEnd: sub.PeriodEnd}, nil
		}
	}

	// The trial clock starts at the first subscription check and sticks:
	// later checks reuse the stored window instead of restarting it.
	trialEnd := now.AddDate(0, 0, a.trialDays)
	if cached, ok, err := a.store.GetSubscriber(user.ID); err == nil && ok && cached.TrialEnd != nil {
		trialEnd = *cached.TrialEnd
	}
	sub.TrialEnd = &trialEnd
	if err := a.store.UpsertSubscriber(sub); err != nil {
		return SubscriptionState{}, fmt.Errorf("save subscriber: %w", err)
	}
	if now.Before(trialEnd) {
		return SubscriptionState{Status: "trialing", TrialEnd: &trialEnd}, nil
	}
	return SubscriptionState{Status: "expired", TrialEnd: &trialEnd}, nil
}

// CreateCheckout opens a hosted checkout for the chosen plan and returns
// its URL. The customer is created on first checkout.
func (a *App) CreateCheckout(ctx context.Context, user domain.User, planID string) (string, error) {
	plan, ok := planByID(strings.TrimSpace(planID))
	if !ok {
		return "", ErrUnknownPlan
	}
	customerID, err := a.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	url, err := a.payments.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID:  customerID,
		UnitAmount:  plan.UnitAmount,
		ProductName: plan.Name,
		SuccessURL:  a.successURL,
		CancelURL:   a.cancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	return url, nil
}

// CustomerPortal opens the processor's self-service portal for the user.
func (a *App) CustomerPortal(ctx context.Context, user domain.User) (string, error) {
	customerID, err := a.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	url, err := a.payments.CreatePortalSession(ctx, customerID, a.portalURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// SendSubscriptionInterest records that a user wants a plan that is not
// purchasable yet and notifies the team by mail. The notification is best
// effort; a mail failure is logged and never surfaced.
func (a *App) SendSubscriptionInterest(ctx context.Context, user domain.User, message string) {
	slog.Info("subscription interest", "user_id", user.ID, "email", user.Email)
	if a.mailer == nil || a.interestEmail == "" {
		return
	}
	subject := "Demande d'abonnement EduKeeper"
	body := fmt.Sprintf("Utilisateur : %s (%s)\n\nMessage :\n%s", user.DisplayName, user.Email, strings.TrimSpace(message))
	if err := a.mailer.Send(ctx, a.interestEmail, subject, body); err != nil {
		slog.Warn("interest mail failed", "user_id", user.ID, "err", err)
	}
}

func (a *App) ensureCustomer(ctx context.Context, user domain.User) (string, error) {
	if sub, ok, err := a.store.GetSubscriber(user.ID); err == nil && ok && sub.CustomerID != "" {
		return sub.CustomerID, nil
	}
	customerID, found, err := a.payments.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return "", fmt.Errorf("lookup customer: %w", err)
	}
	if !found {
		customerID, err = a.payments.CreateCustomer(ctx, user.Email)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
	}
	return customerID, nil
}
