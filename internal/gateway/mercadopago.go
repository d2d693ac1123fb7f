// Package gateway wraps outbound calls to the Mercado Pago REST API.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

// PaymentSnapshot is the authoritative gateway-side view of a payment at the
// moment of the fetch. The pipeline never caches these.
type PaymentSnapshot struct {
	MPPaymentID       string
	Status            string
	StatusDetail      string
	TransactionAmount float64
	AmountRefunded    float64
	CollectorID       int
	ExternalReference string
	LiveMode          bool
}

// CheckoutOrder is the input for creating a checkout preference. PaymentID
// becomes the preference's external reference so the webhook can find the
// local record.
type CheckoutOrder struct {
	PaymentID  string
	Title      string
	Amount     float64
	PayerEmail string
	BackURL    string
	NotifyURL  string
}

// CheckoutPreference is the created preference the buyer is redirected to.
type CheckoutPreference struct {
	ID        string
	InitPoint string
}

// Client talks to Mercado Pago with a fixed bearer token. Construct once and
// inject; see Default for the process-wide instance.
type Client struct {
	payments    payment.Client
	preferences preference.Client
}

func NewClient(accessToken string) (*Client, error) {
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP config: %w", err)
	}
	return &Client{
		payments:    payment.NewClient(cfg),
		preferences: preference.NewClient(cfg),
	}, nil
}

var (
	defaultClient *Client
	defaultErr    error
	defaultOnce   sync.Once
)

// Default returns the lazily initialized process-wide client. Concurrent
// first callers share a single initialization.
func Default(accessToken string) (*Client, error) {
	defaultOnce.Do(func() {
		defaultClient, defaultErr = NewClient(accessToken)
	})
	return defaultClient, defaultErr
}

// FetchPayment reads the current state of a payment from Mercado Pago.
// Every invocation is a fresh network read.
func (c *Client) FetchPayment(ctx context.Context, mpPaymentID string) (*PaymentSnapshot, error) {
	id, err := strconv.Atoi(mpPaymentID)
	if err != nil {
		return nil, fmt.Errorf("invalid MP payment id %q: %w", mpPaymentID, err)
	}

	result, err := c.payments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", mpPaymentID, err)
	}

	return &PaymentSnapshot{
		MPPaymentID:       mpPaymentID,
		Status:            result.Status,
		StatusDetail:      result.StatusDetail,
		TransactionAmount: result.TransactionAmount,
		AmountRefunded:    result.TransactionAmountRefunded,
		CollectorID:       result.CollectorID,
		ExternalReference: result.ExternalReference,
		LiveMode:          result.LiveMode,
	}, nil
}

// CreatePreference creates a checkout preference for a pending local payment.
func (c *Client) CreatePreference(ctx context.Context, order CheckoutOrder) (*CheckoutPreference, error) {
	request := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:     order.Title,
				Quantity:  1,
				UnitPrice: order.Amount,
			},
		},
		Payer: &preference.PayerRequest{
			Email: order.PayerEmail,
		},
		ExternalReference: order.PaymentID,
		NotificationURL:   order.NotifyURL,
		BackURLs: &preference.BackURLsRequest{
			Success: order.BackURL,
			Failure: order.BackURL,
			Pending: order.BackURL,
		},
	}

	result, err := c.preferences.Create(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create preference: %w", err)
	}

	return &CheckoutPreference{
		ID:        result.ID,
		InitPoint: result.InitPoint,
	}, nil
}
