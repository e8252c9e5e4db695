package payfast

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway payment_status values seen in notifications.
const (
	StatusComplete = "COMPLETE"
	StatusFailed   = "FAILED"
	StatusPending  = "PENDING"
)

// Notification is a parsed inbound transaction notification. Fields keeps
// the pairs in the order they arrived, which the signature check needs for
// unrecognized keys.
type Notification struct {
	Fields []Field

	PaymentID     string // m_payment_id, our order number
	GatewayTxnID  string // pf_payment_id
	PaymentStatus string
	AmountGross   decimal.Decimal
	Signature     string
}

// ParseITN decodes a form-encoded notification body, preserving field order.
func ParseITN(body string) (*Notification, error) {
	n := &Notification{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, rawValue, _ := strings.Cut(pair, "=")
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decoding field %q: %w", key, err)
		}
		key, err = url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("decoding field name: %w", err)
		}
		n.Fields = append(n.Fields, Field{Key: key, Value: value})

		switch key {
		case "m_payment_id":
			n.PaymentID = value
		case "pf_payment_id":
			n.GatewayTxnID = value
		case "payment_status":
			n.PaymentStatus = value
		case "amount_gross":
			gross, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("parsing amount_gross %q: %w", value, err)
			}
			n.AmountGross = gross
		case "signature":
			n.Signature = value
		}
	}
	if n.PaymentID == "" {
		return nil, fmt.Errorf("notification missing m_payment_id")
	}
	if n.Signature == "" {
		return nil, fmt.Errorf("notification missing signature")
	}
	return n, nil
}

// Verify checks the notification signature against the merchant passphrase.
func (n *Notification) Verify(passphrase string) bool {
	return SignatureMatches(n.Fields, passphrase, n.Signature)
}

// amountTolerance is the maximum accepted drift between the gateway's gross
// amount and the stored order total, inclusive.
var amountTolerance = decimal.New(1, -2)

// AmountMatches compares the notification's gross amount to the order total
// in cents within the gateway rounding tolerance.
func (n *Notification) AmountMatches(totalCents int) bool {
	total := decimal.New(int64(totalCents), -2)
	return n.AmountGross.Sub(total).Abs().Cmp(amountTolerance) <= 0
}
