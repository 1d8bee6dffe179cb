// Package scanner turns raw recognizer output (a decoded code plus whatever
// text the vision layer pulled off the label) into a structured scan result:
// an optional barcode, an optional normalized expiry date, a guessed product
// name, and a confidence score. Recognition itself is a black box behind the
// Recognizer interface; this package only interprets its output.
package scanner

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopperapp/shopper-backend/pkg/enums"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
)

// Code is a decoded machine-readable code and the symbology it was read as.
type Code struct {
	Value     string
	Symbology enums.Symbology
}

// Recognition is the raw output of a Recognizer pass over one still image.
type Recognition struct {
	// Code is the first decoded barcode/QR code, if any.
	Code *Code
	// Lines holds the recognized text split into visual lines, top to bottom.
	Lines []string
}

// Recognizer decodes codes and text from a single still image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
}

// ScanResult is the classifier output handed to the scan-recording flow.
type ScanResult struct {
	Barcode     *string         `json:"barcode,omitempty"`
	Symbology   enums.Symbology `json:"symbology,omitempty"`
	Text        string          `json:"text,omitempty"`
	ProductName *string         `json:"productName,omitempty"`
	// ExpiryDate is normalized to YYYY-MM-DD where the matched substring
	// parses; otherwise it carries the raw matched substring.
	ExpiryDate *string `json:"expiryDate,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Classifier runs a Recognizer over still images and scores the output.
type Classifier struct {
	recognizer Recognizer
	logg       *logger.Logger
}

func NewClassifier(recognizer Recognizer, logg *logger.Logger) *Classifier {
	return &Classifier{recognizer: recognizer, logg: logg}
}

// Classify recognizes one image and builds a scored result. A frame with no
// code and no text classifies to nil with no error.
func (c *Classifier) Classify(ctx context.Context, image []byte) (*ScanResult, error) {
	recognition, err := c.recognizer.Recognize(ctx, image)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "recognizer failed")
	}

	text := strings.Join(recognition.Lines, "\n")
	if recognition.Code == nil && strings.TrimSpace(text) == "" {
		return nil, nil
	}

	result := &ScanResult{
		Text:        text,
		Symbology:   enums.SymbologyUnknown,
		ProductName: ExtractProductName(text),
		ExpiryDate:  ExtractExpiryDate(text),
	}
	if recognition.Code != nil {
		value := recognition.Code.Value
		result.Barcode = &value
		result.Symbology = recognition.Code.Symbology
	}
	result.Confidence = Confidence(result.Barcode != nil, result.ExpiryDate != nil, text != "")

	if c.logg != nil {
		c.logg.Debug(c.logg.WithField(ctx, "confidence", result.Confidence), "frame classified")
	}
	return result, nil
}

// Confidence scores a classification: a decoded code is worth far more than
// loose label text, and an expiry-looking date in the text sits in between.
func Confidence(hasCode, hasExpiry, hasText bool) float64 {
	score := 0.0
	if hasCode {
		score += 0.8
	}
	if hasExpiry {
		score += 0.3
	}
	if hasText {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// expiryPatterns are tried in order; the first match wins. The prefixed
// patterns capture the date portion in their only group.
// The leading \b keeps the two-digit pattern from biting into the tail of a
// four-digit year, so a bare 2025-12-31 falls through to the ISO pattern.
var expiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{2}[-/]\d{2}[-/]\d{2,4})`),
	regexp.MustCompile(`(\d{4}[-/]\d{2}[-/]\d{2})`),
	regexp.MustCompile(`(?i)EXP[\s:]*(\d{2}[-/]\d{2}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)BEST\s*(?:BY|BEFORE)[\s:]*(\d{2}[-/]\d{2}[-/]\d{2,4})`),
	regexp.MustCompile(`(?i)USE\s*BY[\s:]*(\d{2}[-/]\d{2}[-/]\d{2,4})`),
}

// expiryLayouts is the fixed reparse order for a matched date substring.
// US month-first layouts come before day-first ones, so an ambiguous date
// like 05/06/25 reads as May 6th.
var expiryLayouts = []string{
	"01/02/06",
	"01-02-06",
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"02/01/06",
	"02-01-06",
}

// ExtractExpiryDate scans free text for a date-like substring and normalizes
// it to YYYY-MM-DD. If the matched substring parses under none of the known
// layouts it is returned unchanged; nil means no pattern matched at all.
func ExtractExpiryDate(text string) *string {
	for _, pattern := range expiryPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		normalized := normalizeDate(match[1])
		return &normalized
	}
	return nil
}

func normalizeDate(raw string) string {
	for _, layout := range expiryLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return raw
}

// namePatterns prefer longer runs of capitalized words; a line like
// "Organic Whole Milk" beats its two-word prefix.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+\s+[A-Z][a-z]+)`),
	regexp.MustCompile(`([A-Z][a-z]+\s+[A-Z][a-z]+)`),
	regexp.MustCompile(`([A-Z][a-z]{2,})`),
}

// ExtractProductName guesses a product name from label text: the first line
// that contains a run of capitalized words, longest run first. nil when no
// line looks like a name.
func ExtractProductName(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 2 {
			continue
		}
		for _, pattern := range namePatterns {
			if match := pattern.FindStringSubmatch(line); match != nil {
				name := match[1]
				return &name
			}
		}
	}
	return nil
}
