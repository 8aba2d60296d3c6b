// Package extract pulls booking fields out of free-text messages using
// deterministic patterns. Nothing here keeps state.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field names the draft field a parser was asked for.
type Field string

const (
	FieldName      Field = "name"
	FieldBirthDate Field = "birth_date"
	FieldInsurance Field = "insurance"
	FieldPhone     Field = "phone"
	FieldDate      Field = "date"
	FieldTime      Field = "time"
	FieldChoice    Field = "choice"
)

// DisplayDateLayout is how dates are shown back to patients.
const DisplayDateLayout = "02/01/2006"

const (
	minNameLength      = 3
	minInsuranceLength = 2
)

// ParseError reports that the text did not contain the expected field.
type ParseError struct {
	Field Field
	Input string
	Hint  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: invalid %s %q: %s", e.Field, e.Input, e.Hint)
}

// Extractor is the pluggable parsing surface used by the conversation flows.
type Extractor interface {
	Name(text string) (string, error)
	Date(text string) (time.Time, error)
	Time(text string) (string, error)
	Phone(text string) (string, error)
	Insurance(text string) (string, error)
	Choice(text string, n int) (int, error)
}

// PatternExtractor implements Extractor with regular expressions only.
type PatternExtractor struct{}

var _ Extractor = PatternExtractor{}

func (PatternExtractor) Name(text string) (string, error) { return ParseName(text) }
func (PatternExtractor) Date(text string) (time.Time, error) { return ParseDate(text) }
func (PatternExtractor) Time(text string) (string, error) { return ParseTime(text) }
func (PatternExtractor) Phone(text string) (string, error) { return ParsePhone(text) }
func (PatternExtractor) Insurance(text string) (string, error) { return ParseInsurance(text) }
func (PatternExtractor) Choice(text string, n int) (int, error) { return ParseChoice(text, n) }

var (
	dateSlashPattern  = regexp.MustCompile(`(?:^|[^\d/-])(\d{1,2})/(\d{1,2})/(\d{4})(?:$|[^\d/-])`)
	dateDashPattern   = regexp.MustCompile(`(?:^|[^\d/-])(\d{1,2})-(\d{1,2})-(\d{4})(?:$|[^\d/-])`)
	timeColonPattern  = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2}):(\d{2})(?:$|[^\d:])`)
	timeSpacedPattern = regexp.MustCompile(`^(\d{1,2})\s+(\d{2})$`)
	phoneRunPattern   = regexp.MustCompile(`\+?\(?\d[\d\s().-]*\d`)
	phoneSeparators   = strings.NewReplacer(" ", "", "(", "", ")", "", "-", "", ".", "", "+", "")
	choicePattern     = regexp.MustCompile(`^(?:#|opcao|numero|n)?\s*(\d{1,3})$`)
)

// ParseDate accepts D/M/YYYY or D-M-YYYY and returns the calendar date at UTC midnight.
func ParseDate(text string) (time.Time, error) {
	trimmed := strings.TrimSpace(text)
	matches := append(dateSlashPattern.FindAllStringSubmatch(trimmed, -1), dateDashPattern.FindAllStringSubmatch(trimmed, -1)...)
	if len(matches) != 1 {
		return time.Time{}, &ParseError{Field: FieldDate, Input: text, Hint: "use o formato DD/MM/AAAA, por exemplo 05/03/2026"}
	}
	day, _ := strconv.Atoi(matches[0][1])
	month, _ := strconv.Atoi(matches[0][2])
	year, _ := strconv.Atoi(matches[0][3])

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, &ParseError{Field: FieldDate, Input: text, Hint: "essa data não existe no calendário"}
	}
	return d, nil
}

// ParseTime accepts H:MM or "H MM" and returns zero-padded HH:MM.
func ParseTime(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	var hourStr, minuteStr string
	if m := timeColonPattern.FindAllStringSubmatch(trimmed, -1); len(m) == 1 {
		hourStr, minuteStr = m[0][1], m[0][2]
	} else if m := timeSpacedPattern.FindStringSubmatch(trimmed); m != nil {
		hourStr, minuteStr = m[1], m[2]
	} else {
		return "", &ParseError{Field: FieldTime, Input: text, Hint: "use o formato HH:MM, por exemplo 14:30"}
	}
	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minuteStr)
	if hour > 23 || minute > 59 {
		return "", &ParseError{Field: FieldTime, Input: text, Hint: "o horário deve estar entre 00:00 e 23:59"}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// ParsePhone accepts a single run of 10 or 11 digits (area code + number).
// Common separators inside the run are ignored.
func ParsePhone(text string) (string, error) {
	runs := phoneRunPattern.FindAllString(text, -1)
	if len(runs) != 1 {
		return "", &ParseError{Field: FieldPhone, Input: text, Hint: "informe DDD + número, com 10 ou 11 dígitos, por exemplo 11987654321"}
	}
	digits := phoneSeparators.Replace(runs[0])
	if len(digits) < 10 || len(digits) > 11 || !IsDigits(digits) {
		return "", &ParseError{Field: FieldPhone, Input: text, Hint: "informe DDD + número, com 10 ou 11 dígitos, por exemplo 11987654321"}
	}
	return digits, nil
}

// ParseName returns the trimmed name with internal whitespace collapsed.
func ParseName(text string) (string, error) {
	name := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(name) < minNameLength {
		return "", &ParseError{Field: FieldName, Input: text, Hint: "o nome precisa ter pelo menos 3 letras"}
	}
	if strings.IndexFunc(name, unicode.IsDigit) >= 0 {
		return "", &ParseError{Field: FieldName, Input: text, Hint: "o nome não pode conter números"}
	}
	return name, nil
}

// ParseInsurance returns the trimmed plan name; "particular" is a valid plan.
func ParseInsurance(text string) (string, error) {
	plan := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(plan) < minInsuranceLength {
		return "", &ParseError{Field: FieldInsurance, Input: text, Hint: "informe o nome do convênio ou \"particular\""}
	}
	return plan, nil
}

// ParseChoice reads a 1-based option number in [1, n].
func ParseChoice(text string, n int) (int, error) {
	m := choicePattern.FindStringSubmatch(Normalize(text))
	if m == nil {
		return 0, &ParseError{Field: FieldChoice, Input: text, Hint: fmt.Sprintf("responda com o número da opção, de 1 a %d", n)}
	}
	idx, _ := strconv.Atoi(m[1])
	if idx < 1 || idx > n {
		return 0, &ParseError{Field: FieldChoice, Input: text, Hint: fmt.Sprintf("escolha um número de 1 a %d", n)}
	}
	return idx, nil
}

// Normalize lower-cases text, strips diacritics, turns punctuation into spaces
// and collapses whitespace. A transform.Chain carries state, so each call
// builds its own.
func Normalize(text string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, text)
	if err != nil {
		stripped = text
	}
	stripped = strings.ToLower(stripped)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#' {
			return r
		}
		return ' '
	}, stripped)
	return strings.Join(strings.Fields(cleaned), " ")
}

// FormatDate renders a calendar date as DD/MM/YYYY.
func FormatDate(d time.Time) string {
	return d.Format(DisplayDateLayout)
}

// DateOf returns the calendar date of t in its own location, as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsDigits reports whether s is a non-empty ASCII digit string.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
