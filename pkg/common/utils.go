package common

import (
	"math/rand"
	"time"
)

const invoiceCharacters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateInvoiceID returns prefix + yyyymmddhhmmss + 7 random characters.
func GenerateInvoiceID(prefix string, now time.Time) string {
	r := rand.New(rand.NewSource(now.UnixNano()))

	result := make([]byte, 7)
	for i := range result {
		result[i] = invoiceCharacters[r.Intn(len(invoiceCharacters))]
	}
	return prefix + now.Format("20060102150405") + string(result)
}
