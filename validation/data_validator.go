// Package validation checks request parameters and reports on the quality
// of freshly loaded prescribing data.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
)

// Pre-compiled regex patterns, reused for all validations
var (
	// Input validation: alphanumeric + safe punctuation
	inputRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-\.\+']+$`)

	// BNF codes: 9 characters for a chemical, 15 for a presentation
	bnfCodeRegex = regexp.MustCompile(`^[0-9A-Z]{9,15}$`)

	// ODS codes of practices and CCGs
	orgIDRegex = regexp.MustCompile(`^[0-9A-Z]{3,8}$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "url(", "import ", "@import",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
	}
)

const maxReportedCodes = 10

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateInput validates free-form user input
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len(input) > 50 {
		return fmt.Errorf("input too long: maximum 50 characters")
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods and plus sign are allowed")
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateBNFCode checks the shape of a BNF code
func (v *DataValidatorImpl) ValidateBNFCode(code string) error {
	if code == "" {
		return fmt.Errorf("BNF code cannot be empty")
	}
	if !bnfCodeRegex.MatchString(code) {
		return fmt.Errorf("BNF code must be 9 to 15 upper case letters or digits, got: %q", code)
	}
	return nil
}

// ValidateDate accepts a month as YYYY-MM or YYYY-MM-DD and returns the
// first of that month
func (v *DataValidatorImpl) ValidateDate(date string) (string, error) {
	trimmed := strings.TrimSpace(date)
	if trimmed == "" {
		return "", fmt.Errorf("date cannot be empty")
	}

	layout := matrixstore.DateFormat
	if len(trimmed) == len("2006-01") {
		layout = "2006-01"
	}
	t, err := time.Parse(layout, trimmed)
	if err != nil {
		return "", fmt.Errorf("date must be YYYY-MM or YYYY-MM-DD, got: %q", date)
	}
	if t.Day() != 1 {
		return "", fmt.Errorf("prescribing dates are months, use the first day: %q", date)
	}
	return t.Format(matrixstore.DateFormat), nil
}

// ValidateOrgType parses an org type name
func (v *DataValidatorImpl) ValidateOrgType(orgType string) (orgs.OrgType, error) {
	return orgs.ParseOrgType(strings.TrimSpace(orgType))
}

// ValidateOrgID checks an org code for the given type. The single
// all_standard_practices org has an empty id.
func (v *DataValidatorImpl) ValidateOrgID(orgType orgs.OrgType, id string) error {
	if orgType == orgs.OrgTypeAllStandardPractices {
		if id != "" {
			return fmt.Errorf("%s takes no entity code, got: %q", orgType, id)
		}
		return nil
	}
	if !orgIDRegex.MatchString(id) {
		return fmt.Errorf("entity code must be 3 to 8 upper case letters or digits, got: %q", id)
	}
	return nil
}

// ReportDataQuality compares the prescribing data with the practice register
func (v *DataValidatorImpl) ReportDataQuality(store *matrixstore.Store, practices []orgs.Practice) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		PracticesWithoutRegisterEntryList: []string{},
		StandardPracticesWithoutCCGList:   []string{},
		PresentationsWithoutNameList:      []string{},
		DatesWithoutPrescribing:           []string{},
	}

	// Check 1: practices with prescribing but no register entry
	registered := make(map[string]orgs.Practice, len(practices))
	for _, p := range practices {
		registered[p.Code] = p
	}
	offsets := store.PracticeOffsets()
	prescribingPractices := make([]string, 0, len(offsets))
	for code := range offsets {
		prescribingPractices = append(prescribingPractices, code)
	}
	sort.Strings(prescribingPractices)
	for _, code := range prescribingPractices {
		if _, ok := registered[code]; !ok {
			report.PracticesWithoutRegisterEntry++
			report.PracticesWithoutRegisterEntryList = appendCapped(report.PracticesWithoutRegisterEntryList, code)
		}
	}

	// Check 2: standard practices that no CCG total will include
	for _, p := range practices {
		if p.IsStandard() && p.CCG == "" {
			report.StandardPracticesWithoutCCG++
			report.StandardPracticesWithoutCCGList = appendCapped(report.StandardPracticesWithoutCCGList, p.Code)
		}
	}

	// Check 3: presentations that will be reported as "(unknown)"
	prescribed := store.PrescribedCodes()
	codes := make([]string, 0, len(prescribed))
	for code := range prescribed {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	names := store.NamesForCodes(codes)
	for _, code := range codes {
		if names[code] == "" {
			report.PresentationsWithoutName++
			report.PresentationsWithoutNameList = appendCapped(report.PresentationsWithoutNameList, code)
		}
	}

	// Check 4: months with no prescribing at all
	dates := store.Dates()
	seen := make([]bool, len(dates))
	for _, p := range store.Query(codes) {
		for col := range dates {
			if seen[col] {
				continue
			}
			rows, _ := p.Quantity.Dims()
			for row := 0; row < rows; row++ {
				if p.Quantity.At(row, col) != 0 {
					seen[col] = true
					break
				}
			}
		}
	}
	for col, date := range dates {
		if !seen[col] {
			report.DatesWithoutPrescribing = append(report.DatesWithoutPrescribing, date)
		}
	}

	return report
}

func appendCapped(list []string, code string) []string {
	if len(list) < maxReportedCodes {
		return append(list, code)
	}
	return list
}

// hasExcessiveRepetition checks for potential DoS patterns with excessive character repetition
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	// Check for the same character repeated more than 10 times consecutively
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
