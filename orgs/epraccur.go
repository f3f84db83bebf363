package orgs

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/giygas/ppu-savings/logging"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnknownParent is returned when a standard practice names a CCG that
// does not exist
var ErrUnknownParent = errors.New("practice assigned to unknown CCG")

// ErrInvalidSetting is returned for a row whose prescribing setting is not a
// number. The row cannot be told apart from a standard practice, so it is
// not skipped.
var ErrInvalidSetting = errors.New("invalid prescribing setting")

// WelshNationalGrouping marks practices excluded from the register
const WelshNationalGrouping = "W00"

const (
	colCode             = 0
	colName             = 1
	colNationalGrouping = 2
	colPostcode         = 9
	colOpenDate         = 10
	colCloseDate        = 11
	colStatusCode       = 12
	colCCG              = 23
	minEpraccurColumns  = 25
)

// ParseEpraccur reads the NHS Digital epraccur.csv practice register.
// knownCCGs holds the codes of existing CCGs; a standard practice assigned
// to any other CCG is an error, other practices simply lose the assignment.
func ParseEpraccur(r io.Reader, knownCCGs map[string]struct{}) ([]Practice, error) {
	// The file has been published both as UTF-8 and as ISO-8859-1
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read epraccur: %w", err)
	}
	var reader io.Reader = bytes.NewReader(content)
	if !utf8.Valid(content) {
		reader = charmap.ISO8859_1.NewDecoder().Reader(reader)
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	var practices []Practice
	lineCount := 0
	skippedWelsh := 0
	skippedMissingColumns := 0

	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse epraccur line %d: %w", lineCount+1, err)
		}
		lineCount++

		if len(row) < minEpraccurColumns {
			skippedMissingColumns++
			continue
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}

		if row[colNationalGrouping] == WelshNationalGrouping {
			skippedWelsh++
			continue
		}

		setting, err := strconv.Atoi(row[len(row)-2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d, practice %s: %q", ErrInvalidSetting, lineCount, row[colCode], row[len(row)-2])
		}

		practice := Practice{
			Code:       row[colCode],
			Name:       row[colName],
			Setting:    setting,
			StatusCode: row[colStatusCode],
			Postcode:   row[colPostcode],
			OpenDate:   parseDate(row[colOpenDate]),
			CloseDate:  parseDate(row[colCloseDate]),
		}

		ccg := row[colCCG]
		if _, ok := knownCCGs[ccg]; ok {
			practice.CCG = ccg
		} else if practice.IsStandard() {
			return nil, fmt.Errorf("%w: practice %s assigned to %q", ErrUnknownParent, practice.Code, ccg)
		} else {
			// Mostly Jersey, Isle of Man and similar
			logging.Debug("CCG not found for practice", "practice", practice.Code, "ccg", ccg)
		}

		practices = append(practices, practice)
	}

	logging.Info("Parsed epraccur",
		"lines", lineCount,
		"practices", len(practices),
		"skipped_welsh", skippedWelsh,
		"skipped_missing_columns", skippedMissingColumns,
	)
	return practices, nil
}

// parseDate turns YYYYMMDD into YYYY-MM-DD; anything else becomes ""
func parseDate(d string) string {
	if len(d) != 8 {
		return ""
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}
