// Package exchange implements the wire-level integration with the BSE StAR MF
// platform: session management, transport, response parsing and a mock
// execution path for development.
package exchange

import "starmf-gateway/internal/models"

// OpClass groups endpoints by latency profile; each class carries its own
// request timeout.
type OpClass int

const (
	// OpStatus covers lightweight lookups and status queries.
	OpStatus OpClass = iota
	// OpOrder covers order entry and registration calls.
	OpOrder
	// OpPayment covers payment initiation, which tail-latencies badly on the
	// exchange side.
	OpPayment
	// OpUpload covers file uploads and master downloads.
	OpUpload
)

func (c OpClass) String() string {
	switch c {
	case OpStatus:
		return "status"
	case OpOrder:
		return "order"
	case OpPayment:
		return "payment"
	case OpUpload:
		return "upload"
	}
	return "unknown"
}

// Encoding is the response body format an endpoint speaks.
type Encoding int

const (
	// EncodingPipe is the legacy pipe-delimited body, e.g. "100|token".
	EncodingPipe Encoding = iota
	// EncodingJSON is the JSON body used by the newer endpoints.
	EncodingJSON
)

// Endpoint describes one exchange API.
type Endpoint struct {
	Name     string
	Path     string
	Class    OpClass
	Encoding Encoding
}

// Endpoint catalog. Paths follow the demo/live URL layout; the base URL comes
// from configuration.
var (
	EndpointOrderEntry = Endpoint{
		Name:     "OrderEntry",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointSIPOrder = Endpoint{
		Name:     "SIPOrderEntry",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointXSIPOrder = Endpoint{
		Name:     "XSIPOrderEntry",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointSpreadOrder = Endpoint{
		Name:     "SpreadOrderEntry",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointSwitchOrder = Endpoint{
		Name:     "SwitchOrderEntry",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointPayment = Endpoint{
		Name:     "PaymentGateway",
		Path:     "/StarMFPaymentGatewayService/StarMFPaymentGatewayService.svc/PaymentGatewayAPI",
		Class:    OpPayment,
		Encoding: EncodingJSON,
	}
	EndpointMandateRegistration = Endpoint{
		Name:     "MandateRegistration",
		Path:     "/StarMFWebService/StarMFWebService.svc/MandateRegistration",
		Class:    OpOrder,
		Encoding: EncodingPipe,
	}
	EndpointMandateStatus = Endpoint{
		Name:     "MandateStatus",
		Path:     "/StarMFMandateAPI/api/MandateDetails/MandateStatus",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	EndpointENachAuthURL = Endpoint{
		Name:     "ENachAuthURL",
		Path:     "/StarMFMandateAPI/api/MandateDetails/EMandateAuthURL",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	EndpointMandateShift = Endpoint{
		Name:     "MandateShift",
		Path:     "/StarMFMandateAPI/api/MandateDetails/MandateShift",
		Class:    OpOrder,
		Encoding: EncodingJSON,
	}
	EndpointOrderStatus = Endpoint{
		Name:     "OrderStatus",
		Path:     "/StarMFWebService/StarMFWebService.svc/OrderStatus",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	EndpointAllotmentStatement = Endpoint{
		Name:     "AllotmentStatement",
		Path:     "/StarMFWebService/StarMFWebService.svc/AllotmentStatement",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	EndpointChildOrder = Endpoint{
		Name:     "ChildOrderDetails",
		Path:     "/StarMFWebService/StarMFWebService.svc/ChildOrderDetails",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	EndpointUCCRegistration = Endpoint{
		Name:     "UCCRegistration",
		Path:     "/StarMFCommonAPI/ClientMaster/Registration",
		Class:    OpOrder,
		Encoding: EncodingJSON,
	}
	EndpointFATCAUpload = Endpoint{
		Name:     "FATCAUpload",
		Path:     "/StarMFWebService/StarMFWebService.svc/FATCAUpload",
		Class:    OpUpload,
		Encoding: EncodingPipe,
	}
	EndpointSchemeMaster = Endpoint{
		Name:     "SchemeMasterDownload",
		Path:     "/StarMFFileDownload/DownloadSchemeMaster",
		Class:    OpUpload,
		Encoding: EncodingPipe,
	}
	EndpointFileUpload = Endpoint{
		Name:     "FileUpload",
		Path:     "/StarMFFileUploadService/StarMFFileUploadService.svc/UploadFile",
		Class:    OpUpload,
		Encoding: EncodingJSON,
	}
	EndpointBankMaster = Endpoint{
		Name:     "BankMaster",
		Path:     "/StarMFWebService/StarMFWebService.svc/BankMaster",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
)

// Login endpoints, one per session purpose. Each purpose issues an
// independently scoped token.
var (
	loginOrderEntry = Endpoint{
		Name:     "GetPassword",
		Path:     "/MFOrderEntry/MFOrder.svc/Secure/getPassword",
		Class:    OpStatus,
		Encoding: EncodingPipe,
	}
	loginAdditional = Endpoint{
		Name:     "GetPasswordAdditional",
		Path:     "/StarMFWebService/StarMFWebService.svc/getPassword",
		Class:    OpStatus,
		Encoding: EncodingPipe,
	}
	loginFileUpload = Endpoint{
		Name:     "GetPasswordFileUpload",
		Path:     "/StarMFFileUploadService/StarMFFileUploadService.svc/GetPassword",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	loginMandateStatus = Endpoint{
		Name:     "GetPasswordMandate",
		Path:     "/StarMFMandateAPI/api/Login/GetPassword",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
	loginChildOrder = Endpoint{
		Name:     "GetPasswordChildOrder",
		Path:     "/StarMFChildOrderAPI/api/Login/GetPassword",
		Class:    OpStatus,
		Encoding: EncodingJSON,
	}
)

// LoginEndpoint returns the login endpoint for a session purpose.
func LoginEndpoint(purpose models.SessionPurpose) Endpoint {
	switch purpose {
	case models.PurposeOrderEntry:
		return loginOrderEntry
	case models.PurposeAdditional:
		return loginAdditional
	case models.PurposeFileUpload:
		return loginFileUpload
	case models.PurposeMandateStatus:
		return loginMandateStatus
	case models.PurposeChildOrder:
		return loginChildOrder
	}
	return loginAdditional
}
