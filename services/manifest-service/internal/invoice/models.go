package invoice

// PaymentMode is how the consignor settles the freight.
type PaymentMode string

const (
	PaymentPaid  PaymentMode = "PAID"
	PaymentToPay PaymentMode = "TO_PAY"
	// PaymentTBB is "To Be Billed": deferred billing for enterprise accounts.
	PaymentTBB PaymentMode = "TBB"
)

// CustomerTier drives credit eligibility.
type CustomerTier string

const (
	TierStandard   CustomerTier = "STANDARD"
	TierPriority   CustomerTier = "PRIORITY"
	TierEnterprise CustomerTier = "ENTERPRISE"
)

type Customer struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Tier  CustomerTier `json:"tier"`
	GSTIN string       `json:"gstin,omitempty"`
}

// Tax holds the GST split. Intra-state invoices use CGST+SGST, inter-state IGST.
type Tax struct {
	CGST  float64 `json:"cgst"`
	SGST  float64 `json:"sgst"`
	IGST  float64 `json:"igst"`
	Total float64 `json:"total"`
}

// Financials are whole-rupee amounts as entered on the booking desk.
type Financials struct {
	BaseFreight   float64 `json:"baseFreight"`
	DocketCharge  float64 `json:"docketCharge"`
	PickupCharge  float64 `json:"pickupCharge"`
	PackingCharge float64 `json:"packingCharge"`
	FuelSurcharge float64 `json:"fuelSurcharge"`
	HandlingFee   float64 `json:"handlingFee"`
	Insurance     float64 `json:"insurance"`
	Discount      float64 `json:"discount"`
	Tax           Tax     `json:"tax"`
	TotalAmount   float64 `json:"totalAmount"`
	AdvancePaid   float64 `json:"advancePaid"`
	// Balance may go negative when the advance exceeds the total.
	Balance float64 `json:"balance"`
}

type Invoice struct {
	InvoiceNo   string      `json:"invoiceNo"`
	AWB         string      `json:"awb"`
	CustomerID  string      `json:"customerId"`
	PaymentMode PaymentMode `json:"paymentMode,omitempty"`
	// GSTRate in percent; zero skips the GST recomputation check.
	GSTRate    float64     `json:"gstRate,omitempty"`
	Financials *Financials `json:"financials,omitempty"`
}

// FieldError is one violated rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult lists every violated rule so the desk can show them all at once.
type ValidationResult struct {
	IsValid  bool         `json:"isValid"`
	Errors   []FieldError `json:"errors"`
	Warnings []string     `json:"warnings"`
}

func result(errs []FieldError, warnings []string) ValidationResult {
	if errs == nil {
		errs = []FieldError{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// HasCode reports whether any error carries code.
func (r ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
