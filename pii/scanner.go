package pii

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Category identifies a kind of sensitive data.
type Category string

const (
	CategorySSN         Category = "SSN"
	CategoryEmail       Category = "Email"
	CategoryPhone       Category = "Phone"
	CategoryCreditCard  Category = "CreditCard"
	CategoryIPAddress   Category = "IPAddress"
	CategoryDateOfBirth   Category = "DateOfBirth"
	CategoryPassport      Category = "Passport"
	CategoryEIN           Category = "EIN"
	CategoryCaseNumber    Category = "CaseNumber"
	CategoryMedicalRecord Category = "MedicalRecord"
)

// Finding is a single detected span. Start and End are byte offsets
// into the scanned text, always within its bounds. MatchedText must
// never be logged or persisted.
type Finding struct {
	Category    Category
	Start       int
	End         int
	MatchedText string
}

// Pattern pairs a category with its detection regex. Patterns earlier
// in the scanner's list win when matches overlap.
type Pattern struct {
	Category Category
	Regex    *regexp.Regexp
}

// Scanner detects sensitive data categories in arbitrary text. Scanning
// is stateless; the pattern list is guarded so categories can be
// registered while scans run.
type Scanner struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// NewScanner creates a scanner with the built-in categories. The IP
// pattern does not range-check octets, so strings like 999.999.999.999
// over-match. That is a known limitation, kept so version-like tokens
// never slip through as addresses.
func NewScanner() *Scanner {
	return &Scanner{
		patterns: []Pattern{
			{CategorySSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
			{CategoryCreditCard, regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
			{CategoryPhone, regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
			{CategoryIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
			{CategoryDateOfBirth, regexp.MustCompile(`\b(?:0[1-9]|1[0-2])[/\-](?:0[1-9]|[12]\d|3[01])[/\-](?:19|20)\d{2}\b`)},
			{CategoryPassport, regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`)},
			{CategoryEIN, regexp.MustCompile(`\b\d{2}-\d{7}\b`)},
			{CategoryCaseNumber, regexp.MustCompile(`\b(?:Case|Docket|Matter)\s*(?:No\.?|Number|#)?\s*:?\s*[A-Z0-9\-]+\b`)},
			{CategoryMedicalRecord, regexp.MustCompile(`\b(?:MRN|Medical Record Number)\s*:?\s*[A-Z0-9]+\b`)},
		},
	}
}

// Register adds a custom category. New categories rank below the
// built-ins when matches overlap.
func (s *Scanner) Register(category Category, expr string) error {
	regex, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid pattern for %s: %w", category, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, Pattern{Category: category, Regex: regex})
	return nil
}

// Categories returns the registered categories in priority order.
func (s *Scanner) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.Category
	}
	return out
}

// Scan reports every occurrence of every category, ordered by span
// start. Overlapping matches from different categories are all
// reported; the redaction pipeline decides which one masks the span.
// Empty input yields no findings.
func (s *Scanner) Scan(text string) []Finding {
	if text == "" {
		return nil
	}

	s.mu.RLock()
	patterns := s.patterns
	s.mu.RUnlock()

	var findings []Finding
	for _, p := range patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Category:    p.Category,
				Start:       loc[0],
				End:         loc[1],
				MatchedText: text[loc[0]:loc[1]],
			})
		}
	}

	// Stable sort keeps pattern priority as the tiebreaker for
	// identical start offsets.
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})

	return findings
}
