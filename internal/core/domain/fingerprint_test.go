package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionFingerprintUsesStoredScope(t *testing.T) {
	tx := Transaction{
		Date:             NewDate(2024, time.April, 1),
		Description:      "UPI-ZOMATO-ORDER",
		Amount:           decimal.RequireFromString("-450.00"),
		FingerprintScope: "acct:5010001",
		Ordinal:          1,
	}
	want := Fingerprint(tx.Date, decimal.RequireFromString("-450"), "upi-zomato-order", "acct:5010001", 1)
	if got := tx.Fingerprint(); got != want {
		t.Fatalf("Fingerprint() = %s, want %s", got, want)
	}

	tx.FingerprintScope = "doc_other"
	if tx.Fingerprint() == want {
		t.Fatalf("expected a different scope to change the fingerprint")
	}
}

func TestDescriptionKey(t *testing.T) {
	if got := DescriptionKey("  neft \t salary  april "); got != "NEFT SALARY APRIL" {
		t.Fatalf("DescriptionKey() = %q", got)
	}
}
