package usecase

import (
	"fmt"
	"strings"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// extractionLayout is what a PDF appears to hold, guessed before submission.
type extractionLayout int

const (
	layoutUnknown extractionLayout = iota
	layoutInvoice
	layoutStatement
)

func (l extractionLayout) String() string {
	switch l {
	case layoutInvoice:
		return "invoice"
	case layoutStatement:
		return "statement"
	default:
		return "unknown"
	}
}

var (
	statementMarkers = []string{"STATEMENT OF ACCOUNT", "ACCOUNT STATEMENT", "OPENING BALANCE", "CLOSING BALANCE"}
	invoiceMarkers   = []string{"INVOICE", "RECEIPT", "BILL TO", "AMOUNT DUE"}
)

// guessLayout reads the text layer. Statement markers win because statements
// often list invoice payments.
func guessLayout(text string) extractionLayout {
	upper := strings.ToUpper(text)
	for _, marker := range statementMarkers {
		if strings.Contains(upper, marker) {
			return layoutStatement
		}
	}
	for _, marker := range invoiceMarkers {
		if strings.Contains(upper, marker) {
			return layoutInvoice
		}
	}
	return layoutUnknown
}

const (
	invoiceFields = `invoice_number (string), date (YYYY-MM-DD), vendor (string), recipient (string),
total_amount (number), tax_amount (number or null), currency (ISO 4217 code or null).`

	statementFields = `account_number (string), account_holder (string),
period_from (YYYY-MM-DD), period_to (YYYY-MM-DD) and transactions (array), where each transaction has
date (YYYY-MM-DD), description (string), amount (positive number), type ("debit" or "credit"), balance (number or null),
listed in the order they appear.`

	noInvention = "Do not invent values that are not in the document."
)

var extractionInstructions = map[extractionLayout]string{
	layoutInvoice: "The attached document is an invoice or receipt.\n" +
		"Return one strict JSON object, no markdown, with key \"invoice\" holding:\n" +
		invoiceFields + "\n" + noInvention,
	layoutStatement: "The attached document is a bank statement.\n" +
		"Return one strict JSON object, no markdown, with keys " +
		statementFields + "\n" + noInvention,
	layoutUnknown: "The attached PDF is either an invoice/receipt or a bank statement.\n" +
		"Return one strict JSON object, no markdown.\n" +
		"For an invoice, use key \"invoice\" holding:\n" + invoiceFields + "\n" +
		"For a bank statement, use keys " + statementFields + "\n" + noInvention,
}

func buildExtractionPrompt(layout extractionLayout, previousDefect error) string {
	instructions := extractionInstructions[layout]
	if previousDefect == nil {
		return instructions
	}
	return instructions + "\n\nYour previous answer was rejected: " + previousDefect.Error() +
		".\nAnswer again with only the JSON object described above. Every item needs a date, a description and an amount."
}

func buildCategorizationPrompt(tx domain.Transaction, categories []string) string {
	direction := "income"
	if tx.IsExpense() {
		direction = "expense"
	}
	return fmt.Sprintf(`Classify this bank transaction into exactly one category.
Allowed categories: %s.
Answer with the category name only. If none fits, answer "%s".

Description: %s
Amount: %s %s (%s)`,
		strings.Join(categories, ", "),
		domain.CategoryUncategorized,
		tx.Description,
		tx.Amount.Abs().StringFixed(2),
		tx.Currency,
		direction,
	)
}
