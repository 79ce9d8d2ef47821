package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies what a scanned label refers to.
type Kind string

const (
	KindShipment Kind = "shipment"
	KindManifest Kind = "manifest"
	KindPackage  Kind = "package"
)

// PayloadVersion is the only QR envelope version the parser accepts.
const PayloadVersion = 1

var (
	awbPattern         = regexp.MustCompile(`(?i)^TAC\d{8}$`)
	manifestNoPattern  = regexp.MustCompile(`(?i)^MNF-\d{4}-\d{6}$`)
	generatedNoPattern = regexp.MustCompile(`(?i)^MAN-\d{8}-\d{6}$`)
)

// ErrInvalidFormat is matched by every parse failure.
var ErrInvalidFormat = errors.New("invalid scan format")

// ParseError carries the operator-facing message of a rejected scan.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

func (e *ParseError) Is(target error) bool { return target == ErrInvalidFormat }

func invalid(msg string) error { return &ParseError{Message: msg} }

// Token is the normalized result of one scan. It is never persisted as is.
type Token struct {
	Kind       Kind           `json:"type"`
	AWB        string         `json:"awb,omitempty"`
	ManifestID string         `json:"manifestId,omitempty"`
	ManifestNo string         `json:"manifestNo,omitempty"`
	PackageID  string         `json:"packageId,omitempty"`
	Route      string         `json:"route,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Raw        string         `json:"raw"`
}

// Normalized is the canonical text stored in scan logs.
func (t Token) Normalized() string {
	switch t.Kind {
	case KindShipment:
		return t.AWB
	case KindManifest:
		if t.ManifestNo != "" {
			return t.ManifestNo
		}
		return t.ManifestID
	case KindPackage:
		return t.PackageID
	}
	return ""
}

// envelope is the v1 QR payload printed on labels and manifest sheets.
type envelope struct {
	V          any            `json:"v"`
	Type       string         `json:"type,omitempty"`
	AWB        string         `json:"awb,omitempty"`
	ID         string         `json:"id,omitempty"`
	ManifestNo string         `json:"manifestNo,omitempty"`
	PackageID  string         `json:"packageId,omitempty"`
	Route      string         `json:"route,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ParseScanInput classifies raw scanner text. Recognized shapes, in order:
// a v1 JSON envelope, a bare AWB, a bare manifest number.
func ParseScanInput(raw string) (Token, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Token{}, invalid("Empty scan input")
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseEnvelope(trimmed)
	}

	if awbPattern.MatchString(trimmed) {
		return Token{Kind: KindShipment, AWB: strings.ToUpper(trimmed), Raw: trimmed}, nil
	}

	if manifestNoPattern.MatchString(trimmed) || generatedNoPattern.MatchString(trimmed) {
		return Token{Kind: KindManifest, ManifestNo: strings.ToUpper(trimmed), Raw: trimmed}, nil
	}

	return Token{}, invalid(fmt.Sprintf("Invalid scan format: %s", preview(trimmed)))
}

func parseEnvelope(trimmed string) (Token, error) {
	var p envelope
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return Token{}, invalid("Invalid JSON in scan input")
	}

	// JSON numbers decode as float64; "1" (a string) is not version 1.
	if v, ok := p.V.(float64); !ok || v != PayloadVersion {
		return Token{}, invalid("Unsupported scan payload version")
	}

	switch p.Type {
	case string(KindManifest):
		if p.ID == "" && p.ManifestNo == "" {
			return Token{}, invalid("Manifest scan requires id or manifestNo")
		}
		return Token{
			Kind:       KindManifest,
			ManifestID: p.ID,
			ManifestNo: p.ManifestNo,
			Route:      p.Route,
			Metadata:   p.Metadata,
			Raw:        trimmed,
		}, nil

	case string(KindPackage):
		if p.PackageID == "" {
			return Token{}, invalid("Package scan requires packageId")
		}
		// Package labels may carry a carrier-native code; it is kept as printed.
		return Token{
			Kind:      KindPackage,
			PackageID: p.PackageID,
			AWB:       p.AWB,
			Metadata:  p.Metadata,
			Raw:       trimmed,
		}, nil
	}

	if p.AWB != "" {
		if !awbPattern.MatchString(p.AWB) {
			return Token{}, invalid("Invalid AWB format in payload")
		}
		return Token{
			Kind:     KindShipment,
			AWB:      strings.ToUpper(p.AWB),
			Metadata: p.Metadata,
			Raw:      trimmed,
		}, nil
	}

	return Token{}, invalid("Invalid scan payload structure")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 20 {
		return string(r[:20]) + "..."
	}
	return s
}

// IsValidAWB reports whether s is TAC followed by eight digits, in any case.
func IsValidAWB(s string) bool {
	return awbPattern.MatchString(s)
}
