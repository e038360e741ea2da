// Package liqpay implements the signed-request/verified-callback
// contract of the payment gateway: the request body is a base64-encoded
// JSON document and the signature is base64(sha1(private + data + private)).
// Building and verifying are pure computation; the client browser posts
// the form to the gateway and the gateway calls back our endpoint.
package liqpay

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

const apiVersion = 3

// Statuses the gateway reports that we act on. Anything else is
// treated as neither success nor failure.
const (
	StatusSuccess = "success"
	StatusSandbox = "sandbox"
	StatusError   = "error"
	StatusFailed  = "failed"
	StatusFailure = "failure"
)

// IsSuccess reports whether a callback status confirms the payment.
// Sandbox confirmations count so test-mode flows behave like live ones.
func IsSuccess(status string) bool {
	return status == StatusSuccess || status == StatusSandbox
}

// IsFailure reports whether a callback status means the payment failed.
func IsFailure(status string) bool {
	return status == StatusError || status == StatusFailed || status == StatusFailure
}

type Client struct {
	publicKey  string
	privateKey string
	sandbox    bool
}

func New(publicKey, privateKey string, sandbox bool) *Client {
	return &Client{publicKey: publicKey, privateKey: privateKey, sandbox: sandbox}
}

// Checkout is a signed payment request ready for the client to forward.
type Checkout struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// Callback is the decoded body of a gateway callback.
type Callback struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	Amount  string `json:"amount,omitempty"`
}

type checkoutRequest struct {
	Version     int    `json:"version"`
	PublicKey   string `json:"public_key"`
	Action      string `json:"action"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	OrderID     string `json:"order_id"`
	Sandbox     string `json:"sandbox,omitempty"`
}

// BuildCheckout builds the signed payment request for an order. Amount
// is in whole currency units; orderID is the order's correlation id.
func (c *Client) BuildCheckout(amount int64, currency, description, orderID string) (*Checkout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("liqpay: non-positive amount %d", amount)
	}
	req := checkoutRequest{
		Version:     apiVersion,
		PublicKey:   c.publicKey,
		Action:      "pay",
		Amount:      strconv.FormatInt(amount, 10),
		Currency:    currency,
		Description: description,
		OrderID:     orderID,
	}
	if c.sandbox {
		req.Sandbox = "1"
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("liqpay: marshal checkout: %w", err)
	}
	data := base64.StdEncoding.EncodeToString(raw)
	return &Checkout{Data: data, Signature: c.Sign(data)}, nil
}

// Sign computes base64(sha1(private + data + private)).
func (c *Client) Sign(data string) string {
	h := sha1.Sum([]byte(c.privateKey + data + c.privateKey))
	return base64.StdEncoding.EncodeToString(h[:])
}

// VerifyCallback checks a callback signature against the raw data field.
func (c *Client) VerifyCallback(data, signature string) bool {
	expected := c.Sign(data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// DecodeCallback decodes the base64 JSON body of a verified callback.
func (c *Client) DecodeCallback(data string) (*Callback, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("liqpay: decode callback: %w", err)
	}
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("liqpay: unmarshal callback: %w", err)
	}
	if cb.OrderID == "" {
		return nil, fmt.Errorf("liqpay: callback has no order_id")
	}
	return &cb, nil
}

// EncodeCallback builds a signed callback body. It exists for tests and
// sandbox tooling; the gateway produces real callbacks.
func (c *Client) EncodeCallback(cb Callback) (data, signature string, err error) {
	raw, err := json.Marshal(cb)
	if err != nil {
		return "", "", err
	}
	data = base64.StdEncoding.EncodeToString(raw)
	return data, c.Sign(data), nil
}
