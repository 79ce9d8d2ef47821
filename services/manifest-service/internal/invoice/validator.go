package invoice

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Error codes surfaced to the booking desk.
const (
	CodeAWBRequired          = "AWB_REQUIRED"
	CodeAWBInvalidFormat     = "AWB_INVALID_FORMAT"
	CodeGSTINInvalidFormat   = "GSTIN_INVALID_FORMAT"
	CodeGSTCalcMismatch      = "GST_CALCULATION_MISMATCH"
	CodeNegativeAmount       = "NEGATIVE_AMOUNT"
	CodeDiscountExceedsLimit = "DISCOUNT_EXCEEDS_LIMIT"
	CodeTBBCustomerRequired  = "TBB_CUSTOMER_REQUIRED"
	CodeTBBEnterpriseOnly    = "TBB_ENTERPRISE_ONLY"
	CodeTotalMismatch        = "TOTAL_MISMATCH"
	CodeCustomerRequired     = "CUSTOMER_REQUIRED"
)

var (
	awbPattern   = regexp.MustCompile(`^TAC\d{8}$`)
	gstinPattern = regexp.MustCompile(`^\d{2}[A-Z]{5}\d{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)
)

var (
	maxDiscountRatio     = decimal.RequireFromString("0.25")
	approvalDiscountRate = decimal.RequireFromString("0.15")
	totalTolerance       = decimal.NewFromInt(1)
)

// ValidateAWB checks the stored (already canonical) AWB. Lowercase is rejected here.
func ValidateAWB(awb string) ValidationResult {
	var errs []FieldError
	switch {
	case awb == "":
		errs = append(errs, FieldError{Field: "awb", Message: "AWB number is required", Code: CodeAWBRequired})
	case !awbPattern.MatchString(awb):
		errs = append(errs, FieldError{
			Field:   "awb",
			Message: fmt.Sprintf("AWB %q does not match required format TAC + 8 digits (e.g., TAC48878789)", awb),
			Code:    CodeAWBInvalidFormat,
		})
	}
	return result(errs, nil)
}

// ValidateGSTIN accepts a missing GSTIN (individual consignors) with a warning.
func ValidateGSTIN(gstin string) ValidationResult {
	if gstin == "" {
		return result(nil, []string{"GSTIN not provided - GST invoice cannot be generated"})
	}
	var errs []FieldError
	if !gstinPattern.MatchString(gstin) {
		errs = append(errs, FieldError{
			Field:   "gstin",
			Message: fmt.Sprintf("GSTIN %q is not valid. Expected format: 07AABCU9603R1Z2", gstin),
			Code:    CodeGSTINInvalidFormat,
		})
	}
	return result(errs, nil)
}

// CalculateGST returns the GST on subtotal at ratePercent in whole rupees.
// The product is rounded half up; a non-positive product yields 0.
func CalculateGST(subtotal, ratePercent float64) float64 {
	gst := roundHalfUp(subtotal * (ratePercent / 100))
	if gst <= 0 {
		return 0
	}
	return gst
}

// ValidateGSTCalculation recomputes the GST and compares it to what was billed.
func ValidateGSTCalculation(subtotal, ratePercent, providedTax float64) ValidationResult {
	var errs []FieldError
	expected := CalculateGST(subtotal, ratePercent)
	if providedTax != expected {
		errs = append(errs, FieldError{
			Field:   "tax",
			Message: fmt.Sprintf("GST calculation incorrect. Expected ₹%s, got ₹%s", rupees(expected), rupees(providedTax)),
			Code:    CodeGSTCalcMismatch,
		})
	}
	return result(errs, nil)
}

// ValidateAmounts rejects negative charges. Balance is exempt.
func ValidateAmounts(f Financials) ValidationResult {
	fields := []struct {
		key   string
		value float64
	}{
		{"baseFreight", f.BaseFreight},
		{"docketCharge", f.DocketCharge},
		{"pickupCharge", f.PickupCharge},
		{"packingCharge", f.PackingCharge},
		{"fuelSurcharge", f.FuelSurcharge},
		{"handlingFee", f.HandlingFee},
		{"insurance", f.Insurance},
		{"discount", f.Discount},
		{"tax.cgst", f.Tax.CGST},
		{"tax.sgst", f.Tax.SGST},
		{"tax.igst", f.Tax.IGST},
		{"tax.total", f.Tax.Total},
		{"totalAmount", f.TotalAmount},
		{"advancePaid", f.AdvancePaid},
	}

	var errs []FieldError
	for _, fl := range fields {
		if fl.value < 0 {
			errs = append(errs, FieldError{
				Field:   fl.key,
				Message: fmt.Sprintf("Negative amount not allowed for %s: ₹%s", fl.key, rupees(fl.value)),
				Code:    CodeNegativeAmount,
			})
		}
	}
	return result(errs, nil)
}

// ValidateDiscount: above 25% of subtotal is an error, above 15% needs a manager.
func ValidateDiscount(subtotal, discount float64) ValidationResult {
	sub := decimal.NewFromFloat(subtotal)
	disc := decimal.NewFromFloat(discount)
	maxDiscount := sub.Mul(maxDiscountRatio)
	approval := sub.Mul(approvalDiscountRate)

	var (
		errs     []FieldError
		warnings []string
	)
	switch {
	case disc.GreaterThan(maxDiscount):
		limit, _ := maxDiscount.Float64()
		errs = append(errs, FieldError{
			Field:   "discount",
			Message: fmt.Sprintf("Discount ₹%s exceeds maximum 25%% limit (₹%s)", rupees(discount), rupees(roundHalfUp(limit))),
			Code:    CodeDiscountExceedsLimit,
		})
	case disc.GreaterThan(approval):
		warnings = append(warnings, fmt.Sprintf("Discount ₹%s exceeds 15%% - Manager approval required", rupees(discount)))
	}
	return result(errs, warnings)
}

// ValidatePaymentMode restricts TBB to known enterprise customers.
func ValidatePaymentMode(mode PaymentMode, customer *Customer) ValidationResult {
	var errs []FieldError
	if mode == PaymentTBB {
		switch {
		case customer == nil:
			errs = append(errs, FieldError{
				Field:   "paymentMode",
				Message: "Customer information required for TBB payment mode",
				Code:    CodeTBBCustomerRequired,
			})
		case customer.Tier != TierEnterprise:
			errs = append(errs, FieldError{
				Field:   "paymentMode",
				Message: fmt.Sprintf("TBB payment mode only allowed for Enterprise customers. Current tier: %s", customer.Tier),
				Code:    CodeTBBEnterpriseOnly,
			})
		}
	}
	return result(errs, nil)
}

// Subtotal sums the seven charge lines.
func Subtotal(f Financials) float64 {
	v, _ := subtotal(f).Float64()
	return v
}

func subtotal(f Financials) decimal.Decimal {
	return decimal.Sum(
		decimal.NewFromFloat(f.BaseFreight),
		decimal.NewFromFloat(f.DocketCharge),
		decimal.NewFromFloat(f.PickupCharge),
		decimal.NewFromFloat(f.PackingCharge),
		decimal.NewFromFloat(f.FuelSurcharge),
		decimal.NewFromFloat(f.HandlingFee),
		decimal.NewFromFloat(f.Insurance),
	)
}

// ValidateTotalCalculation checks totalAmount == subtotal + tax - discount
// within one rupee.
func ValidateTotalCalculation(f Financials) ValidationResult {
	expected := subtotal(f).
		Add(decimal.NewFromFloat(f.Tax.Total)).
		Sub(decimal.NewFromFloat(f.Discount))

	var errs []FieldError
	if expected.Sub(decimal.NewFromFloat(f.TotalAmount)).Abs().GreaterThan(totalTolerance) {
		exp, _ := expected.Float64()
		errs = append(errs, FieldError{
			Field:   "totalAmount",
			Message: fmt.Sprintf("Total mismatch. Expected ₹%s, got ₹%s", rupees(roundHalfUp(exp)), rupees(f.TotalAmount)),
			Code:    CodeTotalMismatch,
		})
	}
	return result(errs, nil)
}

// ValidateInvoice runs every rule and collects all errors and warnings.
func ValidateInvoice(inv Invoice, customer *Customer) ValidationResult {
	var (
		errs     []FieldError
		warnings []string
	)
	collect := func(r ValidationResult) {
		errs = append(errs, r.Errors...)
		warnings = append(warnings, r.Warnings...)
	}

	collect(ValidateAWB(inv.AWB))

	if inv.CustomerID == "" {
		errs = append(errs, FieldError{Field: "customerId", Message: "Customer is required", Code: CodeCustomerRequired})
	}

	// GSTIN is optional for individual customers.
	if customer != nil && customer.GSTIN != "" {
		collect(ValidateGSTIN(customer.GSTIN))
	}

	if f := inv.Financials; f != nil {
		collect(ValidateAmounts(*f))
		collect(ValidateTotalCalculation(*f))
		sub := Subtotal(*f)
		collect(ValidateDiscount(sub, f.Discount))
		if inv.GSTRate > 0 {
			collect(ValidateGSTCalculation(sub, inv.GSTRate, f.Tax.Total))
		}
	}

	if inv.PaymentMode != "" {
		collect(ValidatePaymentMode(inv.PaymentMode, customer))
	}

	return result(errs, warnings)
}

// roundHalfUp rounds to the nearest integer with ties toward +Inf.
func roundHalfUp(x float64) float64 {
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}

func rupees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
