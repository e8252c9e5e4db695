package payfast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

func TestSign_CanonicalOrdering(t *testing.T) {
	// Supplied out of order; canonicalization must reorder recognized keys.
	shuffled := []Field{
		{Key: "amount", Value: "150.00"},
		{Key: "merchant_id", Value: "10000100"},
		{Key: "m_payment_id", Value: "VM-ABC12345"},
		{Key: "merchant_key", Value: "46f0cd694581a"},
	}
	ordered := []Field{
		{Key: "merchant_id", Value: "10000100"},
		{Key: "merchant_key", Value: "46f0cd694581a"},
		{Key: "m_payment_id", Value: "VM-ABC12345"},
		{Key: "amount", Value: "150.00"},
	}
	assert.Equal(t, Sign(ordered, "secret"), Sign(shuffled, "secret"))
}

func TestSign_SkipsEmptyAndSignatureFields(t *testing.T) {
	base := []Field{
		{Key: "merchant_id", Value: "10000100"},
		{Key: "amount", Value: "150.00"},
	}
	padded := []Field{
		{Key: "merchant_id", Value: "10000100"},
		{Key: "name_first", Value: ""},
		{Key: "amount", Value: "150.00"},
		{Key: "signature", Value: "deadbeef"},
	}
	assert.Equal(t, Sign(base, ""), Sign(padded, ""))
}

func TestSign_UnknownKeysAppendAfterCanonical(t *testing.T) {
	known := []Field{{Key: "merchant_id", Value: "10000100"}}
	withExtra := append([]Field{{Key: "gateway_extra", Value: "1"}}, known...)

	got := canonicalize(withExtra, "")
	assert.Equal(t, "merchant_id=10000100&gateway_extra=1", got)
}

func TestSign_SpacesEncodeAsPlus(t *testing.T) {
	fields := []Field{{Key: "item_name", Value: "Veldmart Order VM-ABC12345"}}
	got := canonicalize(fields, "")
	assert.Equal(t, "item_name=Veldmart+Order+VM-ABC12345", got)
}

func TestSign_PassphraseChangesSignature(t *testing.T) {
	fields := []Field{{Key: "merchant_id", Value: "10000100"}}
	assert.NotEqual(t, Sign(fields, ""), Sign(fields, "secret phrase"))

	withPhrase := canonicalize(fields, "secret phrase")
	assert.True(t, strings.HasSuffix(withPhrase, "&passphrase=secret+phrase"))
}

func TestBuildPaymentRequest_RoundTrip(t *testing.T) {
	merchant := Merchant{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		Passphrase:  "jt7NOE43FZPn",
		ReturnURL:   "https://veldmart.example/checkout/return",
		CancelURL:   "https://veldmart.example/checkout/cancel",
		NotifyURL:   "https://veldmart.example/webhooks/payfast",
	}
	fields, err := BuildPaymentRequest(merchant, PaymentRequest{
		PaymentID:      "VM-ABC12345",
		AmountCents:    15050,
		ItemName:       "Veldmart order VM-ABC12345",
		BuyerFirstName: "Thandi",
		BuyerLastName:  "Nkosi",
		BuyerEmail:     "thandi@example.com",
	})
	require.NoError(t, err)

	var signature string
	for _, f := range fields {
		if f.Key == "signature" {
			signature = f.Value
		}
	}
	require.NotEmpty(t, signature)
	assert.True(t, SignatureMatches(fields, merchant.Passphrase, signature))

	// Mutating any field must invalidate the signature.
	tampered := make([]Field, len(fields))
	copy(tampered, fields)
	for i := range tampered {
		if tampered[i].Key == "amount" {
			tampered[i].Value = "1.00"
		}
	}
	assert.False(t, SignatureMatches(tampered, merchant.Passphrase, signature))
}

func TestBuildPaymentRequest_Validation(t *testing.T) {
	merchant := Merchant{MerchantID: "10000100", MerchantKey: "46f0cd694581a"}

	_, err := BuildPaymentRequest(Merchant{}, PaymentRequest{PaymentID: "VM-ABC12345", AmountCents: 100})
	assert.Error(t, err)

	_, err = BuildPaymentRequest(merchant, PaymentRequest{AmountCents: 100})
	assert.Error(t, err)

	_, err = BuildPaymentRequest(merchant, PaymentRequest{PaymentID: "VM-ABC12345", AmountCents: 0})
	assert.Error(t, err)
}

func TestCentsToAmount(t *testing.T) {
	assert.Equal(t, "150.50", CentsToAmount(15050))
	assert.Equal(t, "0.05", CentsToAmount(5))
	assert.Equal(t, "1000.00", CentsToAmount(100000))
}

func itnBody(passphrase string, overrides map[string]string) string {
	fields := []Field{
		{Key: "m_payment_id", Value: "VM-ABC12345"},
		{Key: "pf_payment_id", Value: "1089250"},
		{Key: "payment_status", Value: "COMPLETE"},
		{Key: "item_name", Value: "Veldmart order VM-ABC12345"},
		{Key: "amount_gross", Value: "150.50"},
		{Key: "amount_fee", Value: "-3.50"},
		{Key: "amount_net", Value: "147.00"},
		{Key: "merchant_id", Value: "10000100"},
	}
	for i, f := range fields {
		if v, ok := overrides[f.Key]; ok {
			fields[i].Value = v
		}
	}
	signature := Sign(fields, passphrase)
	fields = append(fields, Field{Key: "signature", Value: signature})
	return EncodeForm(fields)
}

func TestParseITN_RoundTrip(t *testing.T) {
	body := itnBody("jt7NOE43FZPn", nil)

	n, err := ParseITN(body)
	require.NoError(t, err)
	assert.Equal(t, "VM-ABC12345", n.PaymentID)
	assert.Equal(t, "1089250", n.GatewayTxnID)
	assert.Equal(t, "COMPLETE", n.PaymentStatus)
	assert.Equal(t, "150.5", n.AmountGross.String())
	assert.True(t, n.Verify("jt7NOE43FZPn"))
	assert.False(t, n.Verify("wrong-passphrase"))
}

func TestParseITN_TamperedBody(t *testing.T) {
	body := itnBody("jt7NOE43FZPn", nil)
	body = strings.Replace(body, "150.50", "999.99", 1)

	n, err := ParseITN(body)
	require.NoError(t, err)
	assert.False(t, n.Verify("jt7NOE43FZPn"))
}

func TestParseITN_MissingFields(t *testing.T) {
	_, err := ParseITN("payment_status=COMPLETE&signature=abc")
	assert.Error(t, err)

	_, err = ParseITN("m_payment_id=VM-ABC12345&payment_status=COMPLETE")
	assert.Error(t, err)
}

func TestAmountMatches_Tolerance(t *testing.T) {
	n, err := ParseITN(itnBody("", map[string]string{"amount_gross": "150.50"}))
	require.NoError(t, err)

	assert.True(t, n.AmountMatches(15050))
	// 0.01 drift is inside the tolerance, 0.02 is outside.
	assert.True(t, n.AmountMatches(15049))
	assert.True(t, n.AmountMatches(15051))
	assert.False(t, n.AmountMatches(15048))
	assert.False(t, n.AmountMatches(15052))
}

func TestMapPaymentStatus(t *testing.T) {
	assert.Equal(t, enums.PaymentStatusPaid, MapPaymentStatus("COMPLETE"))
	assert.Equal(t, enums.PaymentStatusFailed, MapPaymentStatus("FAILED"))
	assert.Equal(t, enums.PaymentStatusPending, MapPaymentStatus("PENDING"))
	assert.Equal(t, enums.PaymentStatusPending, MapPaymentStatus("SOMETHING_NEW"))
	assert.Equal(t, enums.PaymentStatusPending, MapPaymentStatus(""))
}

func TestIPAllowed(t *testing.T) {
	allowlist := []string{"197.97.145.144", "41.74.179.0/24"}

	assert.True(t, IPAllowed("197.97.145.144", allowlist))
	assert.True(t, IPAllowed("197.97.145.144:443", allowlist))
	assert.True(t, IPAllowed("41.74.179.22", allowlist))
	assert.False(t, IPAllowed("41.74.180.1", allowlist))
	assert.False(t, IPAllowed("10.0.0.1", allowlist))
	assert.False(t, IPAllowed("not-an-ip", allowlist))
	assert.False(t, IPAllowed("197.97.145.144", nil))
}
