package exchange

import (
	"strings"

	"starmf-gateway/internal/models"
)

// OrderStatusDetail is one order row in an order-status response.
type OrderStatusDetail struct {
	OrderNumber    string `json:"OrderNo"`
	Status         string `json:"OrderStatus"`
	Remarks        string `json:"OrderRemarks"`
	AllottedUnits  string `json:"AllottedUnit"`
	AllottedNAV    string `json:"AllottedNAV"`
	AllottedAmount string `json:"AllottedAmount"`
	AllotmentDate  string `json:"AllotmentDate"`
}

// OrderStatusResponse is the order-status endpoint's JSON body.
type OrderStatusResponse struct {
	Status  string              `json:"Status"`
	Remarks string              `json:"Remarks"`
	Orders  []OrderStatusDetail `json:"OrderDetails"`
}

// MandateStatusDetail is one mandate row in a mandate-status response.
type MandateStatusDetail struct {
	MandateID string `json:"MandateId"`
	UMRN      string `json:"UMRNNo"`
	Status    string `json:"Status"`
	Remarks   string `json:"Remarks"`
}

// MandateStatusResponse is the mandate-status endpoint's JSON body.
type MandateStatusResponse struct {
	Status   string                `json:"Status"`
	Remarks  string                `json:"Remarks"`
	Mandates []MandateStatusDetail `json:"MandateDetails"`
}

// AuthURLResponse is the e-NACH authentication URL body.
type AuthURLResponse struct {
	Status  string `json:"Status"`
	Remarks string `json:"Remarks"`
	AuthURL string `json:"AuthenticationUrl"`
}

// PaymentResponse is the payment-gateway body; ResponseString carries the
// bank redirect URL on success.
type PaymentResponse struct {
	Status         string `json:"Status"`
	Remarks        string `json:"Remarks"`
	ResponseString string `json:"ResponseString"`
}

// ChildOrderDetail is one realized installment in a child-order response.
type ChildOrderDetail struct {
	RegnNumber    string `json:"SIPRegnNo"`
	InstallmentNo int    `json:"InstallmentNo"`
	OrderNumber   string `json:"OrderNo"`
	Amount        string `json:"Amount"`
	Units         string `json:"Units"`
	NAV           string `json:"NAV"`
	Status        string `json:"OrderStatus"`
}

// ChildOrderResponse is the child-order endpoint's JSON body.
type ChildOrderResponse struct {
	Status  string             `json:"Status"`
	Remarks string             `json:"Remarks"`
	Orders  []ChildOrderDetail `json:"ChildOrderDetails"`
}

// MapOrderStatus translates an exchange order-status word into the internal
// lifecycle state. Unknown words map to empty, which callers must treat as
// no change.
func MapOrderStatus(word string) models.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(word)) {
	case "VALID", "ACCEPTED":
		return models.OrderAccepted
	case "INVALID", "REJECTED":
		return models.OrderRejected
	case "PAYMENT AWAITED", "PAYMENT PENDING":
		return models.OrderPaymentPending
	case "PAYMENT DONE", "PAYMENT SUCCESS":
		return models.OrderPaymentSuccess
	case "PAYMENT FAILED":
		return models.OrderPaymentFailed
	case "ALLOTTED", "ALLOTMENT DONE":
		return models.OrderAllotted
	case "CANCELLED", "CXL":
		return models.OrderCancelled
	}
	return ""
}

// MapMandateStatus translates an exchange mandate-status word.
func MapMandateStatus(word string) models.MandateStatus {
	switch strings.ToUpper(strings.TrimSpace(word)) {
	case "REGISTERED", "SUBMITTED", "UNDER PROCESSING", "WAITING FOR CLIENT AUTHENTICATION":
		return models.MandateSubmitted
	case "APPROVED", "ACTIVE":
		return models.MandateApproved
	case "REJECTED":
		return models.MandateRejected
	case "CANCELLED":
		return models.MandateCancelled
	case "EXPIRED":
		return models.MandateExpired
	case "SHIFTED":
		return models.MandateShifted
	}
	return ""
}
