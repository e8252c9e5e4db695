package payfast

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Merchant carries the credentials and callback URLs for outbound requests.
type Merchant struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
	ProcessURL  string
}

// PaymentRequest is the buyer-facing side of a checkout payment.
type PaymentRequest struct {
	PaymentID       string // order number carried back in the notification
	AmountCents     int
	ItemName        string
	ItemDescription string
	BuyerFirstName  string
	BuyerLastName   string
	BuyerEmail      string
}

// CentsToAmount renders integer cents as the gateway's decimal string, always
// two fraction digits.
func CentsToAmount(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2)
}

// BuildPaymentRequest assembles the signed, ordered field set for the
// gateway's process endpoint. The caller renders these as a redirect form.
func BuildPaymentRequest(m Merchant, req PaymentRequest) ([]Field, error) {
	if m.MerchantID == "" || m.MerchantKey == "" {
		return nil, fmt.Errorf("merchant credentials are required")
	}
	if req.PaymentID == "" {
		return nil, fmt.Errorf("payment id is required")
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	fields := []Field{
		{Key: "merchant_id", Value: m.MerchantID},
		{Key: "merchant_key", Value: m.MerchantKey},
		{Key: "return_url", Value: m.ReturnURL},
		{Key: "cancel_url", Value: m.CancelURL},
		{Key: "notify_url", Value: m.NotifyURL},
		{Key: "name_first", Value: req.BuyerFirstName},
		{Key: "name_last", Value: req.BuyerLastName},
		{Key: "email_address", Value: req.BuyerEmail},
		{Key: "m_payment_id", Value: req.PaymentID},
		{Key: "amount", Value: CentsToAmount(req.AmountCents)},
		{Key: "item_name", Value: req.ItemName},
		{Key: "item_description", Value: req.ItemDescription},
	}

	signature := Sign(fields, m.Passphrase)
	fields = append(fields, Field{Key: "signature", Value: signature})
	return fields, nil
}

// EncodeForm renders fields as an application/x-www-form-urlencoded body.
func EncodeForm(fields []Field) string {
	var b strings.Builder
	first := true
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}
