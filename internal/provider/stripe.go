package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeProvider wraps Stripe API operations.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// StripeCustomer is the subset of a Stripe customer object we consume.
type StripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// StripeSubscription is the subset of a Stripe subscription object we consume.
type StripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				Product string `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ProductID returns the product of the subscription's first line item.
func (s *StripeSubscription) ProductID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.Product
}

// PaymentIntent is the subset of a Stripe payment intent we consume.
type PaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StripeWebhookEvent represents a parsed Stripe webhook event.
type StripeWebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CheckoutSessionData is the nested data.object from a
// checkout.session.completed event.
type CheckoutSessionData struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	ClientReferenceID string `json:"client_reference_id"`
}

// FindCustomerByEmail returns the first Stripe customer matching the email,
// or nil when none exists.
func (s *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*StripeCustomer, error) {
	endpoint := stripeAPIBase + "/customers?limit=1&email=" + url.QueryEscape(email)
	var out struct {
		Data []StripeCustomer `json:"data"`
	}
	if err := s.doGet(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return &out.Data[0], nil
}

// ListActiveSubscriptions returns the customer's active subscriptions.
func (s *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]StripeSubscription, error) {
	endpoint := stripeAPIBase + "/subscriptions?status=active&customer=" + url.QueryEscape(customerID)
	var out struct {
		Data []StripeSubscription `json:"data"`
	}
	if err := s.doGet(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out.Data, nil
}

// GetSubscription fetches a single subscription by id.
func (s *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*StripeSubscription, error) {
	var sub StripeSubscription
	if err := s.doGet(ctx, stripeAPIBase+"/subscriptions/"+url.PathEscape(subscriptionID), &sub); err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// ChargeSavedPaymentMethod creates and confirms an off-session payment intent
// against the customer's default payment method. Used by auto-renewal, where
// no cardholder is present.
func (s *StripeProvider) ChargeSavedPaymentMethod(ctx context.Context, customerID string, amountCents int64, currency, description string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("description", description)
	form.Set("off_session", "true")
	form.Set("confirm", "true")

	var intent PaymentIntent
	if err := s.doPost(ctx, stripeAPIBase+"/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("charge payment method: %w", err)
	}
	if intent.Status != "succeeded" {
		return &intent, fmt.Errorf("payment intent %s not succeeded: %s", intent.ID, intent.Status)
	}
	return &intent, nil
}

func (s *StripeProvider) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return s.do(req, out)
}

func (s *StripeProvider) doPost(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, out)
}

func (s *StripeProvider) do(req *http.Request, out interface{}) error {
	if s.secretKey == "" {
		return fmt.Errorf("stripe secret key not configured")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stripe error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
// Returns the parsed event if valid.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, sigHeader string) (*StripeWebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}

	// Parse Stripe-Signature header: t=timestamp,v1=signature
	parts := strings.Split(sigHeader, ",")
	var timestamp string
	var signatures []string
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("invalid signature header format")
	}

	// Check timestamp tolerance (5 minutes)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	if time.Now().Unix()-ts > 300 {
		return nil, fmt.Errorf("webhook timestamp too old")
	}

	// Compute expected signature
	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	// Compare with provided signatures
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event StripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

// ParseCheckoutSessionData extracts checkout session data from a webhook event.
func ParseCheckoutSessionData(data json.RawMessage) (*CheckoutSessionData, error) {
	var wrapper struct {
		Object CheckoutSessionData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse checkout session data: %w", err)
	}
	return &wrapper.Object, nil
}

// ParseSubscriptionData extracts the subscription object from a webhook event.
func ParseSubscriptionData(data json.RawMessage) (*StripeSubscription, error) {
	var wrapper struct {
		Object StripeSubscription `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse subscription data: %w", err)
	}
	return &wrapper.Object, nil
}
