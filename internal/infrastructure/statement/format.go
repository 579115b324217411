package statement

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format describes the fixed column layout of one bank's export.
type Format struct {
	Name               string   `yaml:"name"`
	HeaderMarkers      []string `yaml:"header_markers"`
	Columns            Columns  `yaml:"columns"`
	DateLayouts        []string `yaml:"date_layouts"`
	DecimalSeparator   string   `yaml:"decimal_separator"`
	ThousandsSeparator string   `yaml:"thousands_separator"`
	SkipMarkers        []string `yaml:"skip_markers"`
	EndMarkers         []string `yaml:"end_markers"`
	Currency           string   `yaml:"currency"`
	Metadata           Labels   `yaml:"metadata"`
}

// Columns lists accepted header captions per field. Matching ignores case,
// punctuation and spacing.
type Columns struct {
	Date        []string `yaml:"date"`
	Description []string `yaml:"description"`
	Debit       []string `yaml:"debit"`
	Credit      []string `yaml:"credit"`
	Amount      []string `yaml:"amount"`
	Type        []string `yaml:"type"`
	Balance     []string `yaml:"balance"`
	Reference   []string `yaml:"reference"`
	ValueDate   []string `yaml:"value_date"`
}

// Labels are the captions used in the rows around the transaction table.
type Labels struct {
	AccountNumber  []string `yaml:"account_number"`
	HolderPrefixes []string `yaml:"holder_prefixes"`
	Period         []string `yaml:"period"`
	OpeningBalance []string `yaml:"opening_balance"`
	ClosingBalance []string `yaml:"closing_balance"`
}

// HDFC is the built-in profile for HDFC Bank account statements.
func HDFC() Format {
	return Format{
		Name:          "hdfc",
		HeaderMarkers: []string{"Date", "Narration"},
		Columns: Columns{
			Date:        []string{"Date", "Txn Date"},
			Description: []string{"Narration"},
			Debit:       []string{"Withdrawal Amt.", "Withdrawal Amount"},
			Credit:      []string{"Deposit Amt.", "Deposit Amount"},
			Balance:     []string{"Closing Balance"},
			Reference:   []string{"Chq./Ref.No.", "Chq/Ref Number"},
			ValueDate:   []string{"Value Dt", "Value Date"},
		},
		DateLayouts:        []string{"02/01/06", "02/01/2006"},
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		SkipMarkers:        []string{"Opening Balance", "Generated", "Continue", "Page No"},
		EndMarkers:         []string{"STATEMENT SUMMARY"},
		Currency:           "INR",
		Metadata: Labels{
			AccountNumber:  []string{"Account No"},
			HolderPrefixes: []string{"MR.", "MRS.", "MS.", "M/S."},
			Period:         []string{"Statement From"},
			OpeningBalance: []string{"Opening Balance"},
			ClosingBalance: []string{"Closing Bal", "Closing Balance"},
		},
	}
}

type formatFile struct {
	Formats []Format `yaml:"formats"`
}

// LoadFormats reads statement profiles from a YAML file of the form
// `formats: [...]`. Missing separators are defaulted.
func LoadFormats(path string) ([]Format, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statement formats: %w", err)
	}
	return ParseFormats(raw)
}

func ParseFormats(raw []byte) ([]Format, error) {
	var file formatFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode statement formats: %w", err)
	}
	if len(file.Formats) == 0 {
		return nil, errors.New("statement formats: no formats defined")
	}

	formats := make([]Format, 0, len(file.Formats))
	for i, f := range file.Formats {
		f = f.withDefaults()
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("statement format %d: %w", i, err)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// Validate checks that the profile can locate every required column.
func (f Format) Validate() error {
	var problems []error
	if strings.TrimSpace(f.Name) == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if len(f.HeaderMarkers) == 0 {
		problems = append(problems, errors.New("header_markers are required"))
	}
	if len(f.Columns.Date) == 0 {
		problems = append(problems, errors.New("columns.date is required"))
	}
	if len(f.Columns.Description) == 0 {
		problems = append(problems, errors.New("columns.description is required"))
	}
	split := len(f.Columns.Debit) > 0 && len(f.Columns.Credit) > 0
	if !split && len(f.Columns.Amount) == 0 {
		problems = append(problems, errors.New("either columns.debit and columns.credit or columns.amount is required"))
	}
	if len(f.DateLayouts) == 0 {
		problems = append(problems, errors.New("date_layouts are required"))
	}
	if f.DecimalSeparator == f.ThousandsSeparator {
		problems = append(problems, fmt.Errorf("decimal and thousands separators must differ, both %q", f.DecimalSeparator))
	}
	return errors.Join(problems...)
}

func (f Format) withDefaults() Format {
	if f.DecimalSeparator == "" {
		f.DecimalSeparator = "."
	}
	if f.ThousandsSeparator == "" && f.DecimalSeparator != "," {
		f.ThousandsSeparator = ","
	}
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	return f
}

// headerKey folds a caption to lowercase letters and digits.
func headerKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func matchesAny(cell string, captions []string) bool {
	key := headerKey(cell)
	if key == "" {
		return false
	}
	for _, caption := range captions {
		if headerKey(caption) == key {
			return true
		}
	}
	return false
}
