package orders

import (
	"crypto/rand"
	"fmt"
)

const (
	orderNumberPrefix = "VM-"
	orderNumberLength = 8
	// No 0/O or 1/I, support agents read these over the phone.
	orderNumberAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// GenerateOrderNumber returns a short human-readable order reference like
// VM-7K2MQ4ZD. Uniqueness is enforced by the store; callers retry on
// collision.
func GenerateOrderNumber() (string, error) {
	buf := make([]byte, orderNumberLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return orderNumberPrefix + string(buf), nil
}
