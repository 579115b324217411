package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// fingerprintVersion is hashed first so a future change of the canonical
// encoding cannot collide with existing ids.
const fingerprintVersion = "txfp1"

// Fingerprint is the transaction id: a hash over date, amount, normalized
// description, the document scope and the occurrence ordinal.
func Fingerprint(date Date, amount decimal.Decimal, description, scope string, ordinal int) string {
	h := sha256.New()
	for _, part := range []string{
		fingerprintVersion,
		date.String(),
		amount.String(),
		DescriptionKey(description),
		scope,
		strconv.Itoa(ordinal),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// DescriptionKey folds a description for comparison: collapsed whitespace,
// upper case.
func DescriptionKey(description string) string {
	return strings.ToUpper(strings.Join(strings.Fields(description), " "))
}

// Fingerprint recomputes the id from the stored fields. It equals ID for
// every transaction that entered the ledger through ingestion.
func (t Transaction) Fingerprint() string {
	return Fingerprint(t.Date, t.Amount, t.Description, t.FingerprintScope, t.Ordinal)
}
