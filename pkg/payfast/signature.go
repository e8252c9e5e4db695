package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"strings"
)

// Field is one key-value pair of a gateway request or notification. Order
// matters for signing, so fields travel as slices rather than maps.
type Field struct {
	Key   string
	Value string
}

// fieldOrder is the gateway's canonical signing order. Recognized keys sign
// in this exact sequence; anything else is appended afterward in the order
// it was supplied.
var fieldOrder = []string{
	"merchant_id",
	"merchant_key",
	"return_url",
	"cancel_url",
	"notify_url",
	"name_first",
	"name_last",
	"email_address",
	"cell_number",
	"m_payment_id",
	"pf_payment_id",
	"payment_status",
	"amount",
	"amount_gross",
	"amount_fee",
	"amount_net",
	"item_name",
	"item_description",
	"custom_int1",
	"custom_int2",
	"custom_int3",
	"custom_int4",
	"custom_int5",
	"custom_str1",
	"custom_str2",
	"custom_str3",
	"custom_str4",
	"custom_str5",
	"email_confirmation",
	"confirmation_address",
	"payment_method",
}

var fieldRank = func() map[string]int {
	ranks := make(map[string]int, len(fieldOrder))
	for i, key := range fieldOrder {
		ranks[key] = i
	}
	return ranks
}()

// canonicalize serializes fields as key=urlencoded(value)&... in canonical
// order, dropping empty values and the signature field itself, then appends
// the passphrase when one is configured. The output must match the gateway
// byte for byte or signatures will not agree.
func canonicalize(fields []Field, passphrase string) string {
	ordered := make([]Field, 0, len(fields))
	for _, key := range fieldOrder {
		for _, f := range fields {
			if f.Key == key && f.Value != "" {
				ordered = append(ordered, f)
			}
		}
	}
	for _, f := range fields {
		if _, known := fieldRank[f.Key]; known {
			continue
		}
		if f.Key == "signature" || f.Value == "" {
			continue
		}
		ordered = append(ordered, f)
	}

	var b strings.Builder
	for i, f := range ordered {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	if passphrase != "" {
		b.WriteString("&passphrase=")
		b.WriteString(url.QueryEscape(passphrase))
	}
	return b.String()
}

// Sign computes the MD5 hex signature over the canonical serialization.
func Sign(fields []Field, passphrase string) string {
	sum := md5.Sum([]byte(canonicalize(fields, passphrase)))
	return hex.EncodeToString(sum[:])
}

// SignatureMatches recomputes the signature and compares it to the received
// one in constant time.
func SignatureMatches(fields []Field, passphrase, received string) bool {
	expected := Sign(fields, passphrase)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(received))) == 1
}
