// Package format renders invoice numbers and the money, quantity and date
// strings shared by the HTML and PDF documents.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}{DD}-{SEQ6}"

var (
	ErrEmptyTemplate = errors.New("invoice_number_template_empty")
	ErrNoSequence    = errors.New("invoice_number_template_without_seq")
)

// {NAME} or {NAMEwidth}; only SEQ takes a width.
var tokenRe = regexp.MustCompile(`\{([A-Z]+)(\d*)\}`)

// CheckNumberTemplate rejects templates that would fail or repeat numbers.
func CheckNumberTemplate(template string) error {
	_, err := FormatInvoiceNumber(template, time.Unix(0, 0).UTC(), 1)
	return err
}

// FormatInvoiceNumber expands template for the issue date and the tenant's
// invoice sequence. Tokens are {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}, the
// last one zero padded to n digits.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", ErrEmptyTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("invoice sequence must be positive, got %d", seq)
	}

	var (
		unknown []string
		hasSeq  bool
	)
	out := tokenRe.ReplaceAllStringFunc(template, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		name, width := m[1], m[2]
		if name == "SEQ" {
			hasSeq = true
			n, _ := strconv.Atoi(width)
			return fmt.Sprintf("%0*d", n, seq)
		}
		if width != "" {
			unknown = append(unknown, tok)
			return tok
		}
		switch name {
		case "YYYY":
			return issuedAt.Format("2006")
		case "YY":
			return issuedAt.Format("06")
		case "MM":
			return issuedAt.Format("01")
		case "DD":
			return issuedAt.Format("02")
		}
		unknown = append(unknown, tok)
		return tok
	})

	switch {
	case len(unknown) > 0:
		return "", fmt.Errorf("unknown invoice number token %s", strings.Join(unknown, ", "))
	case strings.ContainsAny(out, "{}"):
		return "", fmt.Errorf("unbalanced brace in invoice number template %q", template)
	case !hasSeq:
		return "", ErrNoSequence
	}
	return out, nil
}
