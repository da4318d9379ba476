package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MockClient is the development execution path. It satisfies Client, so
// everything above the transport (sessions, services, jobs) runs unchanged;
// only the wire is simulated. Responses mirror the live encodings exactly.
type MockClient struct {
	logger zerolog.Logger

	mu       sync.Mutex
	orderSeq int
	regSeq   int
	mandSeq  int
	// polls counts status queries per order/mandate so repeated polls walk
	// the lifecycle forward instead of returning the same state forever.
	polls map[string]int
}

// NewMockClient creates a mock exchange client.
func NewMockClient(logger zerolog.Logger) *MockClient {
	return &MockClient{
		logger: logger,
		polls:  make(map[string]int),
	}
}

// Execute fabricates a response for the endpoint without any network I/O.
func (c *MockClient) Execute(ctx context.Context, req Request) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", req.Endpoint.Name).
		Str("api", req.APIName).
		Msg("Mock exchange call")

	var body []byte
	switch req.Endpoint.Name {
	case "GetPassword", "GetPasswordAdditional":
		body = []byte(JoinPipe(CodeSuccess, "MOCK-SESSION-"+uuid.NewString()))
	case "GetPasswordFileUpload", "GetPasswordMandate", "GetPasswordChildOrder":
		body = mustJSON(map[string]string{
			"Status": CodeSuccess,
			"Token":  "MOCK-TOKEN-" + uuid.NewString(),
		})
	case "OrderEntry", "SwitchOrderEntry", "SpreadOrderEntry":
		body = []byte(JoinPipe(CodeSuccess, c.nextOrderNumber(), "ORDER CONFIRMED"))
	case "SIPOrderEntry", "XSIPOrderEntry":
		body = []byte(JoinPipe(CodeSuccess, c.nextRegNumber(), "REGISTRATION CONFIRMED"))
	case "MandateRegistration":
		body = []byte(JoinPipe(CodeSuccess, c.nextMandateID(), "MANDATE REGISTERED"))
	case "PaymentGateway":
		body = mustJSON(PaymentResponse{
			Status:         CodeSuccess,
			ResponseString: "https://mock.exchange.local/pay/" + uuid.NewString(),
		})
	case "OrderStatus":
		body = c.orderStatusBody(req)
	case "MandateStatus":
		body = c.mandateStatusBody(req)
	case "ENachAuthURL":
		body = mustJSON(AuthURLResponse{
			Status:  CodeSuccess,
			AuthURL: "https://mock.exchange.local/enach/" + uuid.NewString(),
		})
	case "MandateShift":
		body = mustJSON(map[string]string{"Status": CodeSuccess, "Remarks": "SHIFT ACCEPTED"})
	case "ChildOrderDetails":
		body = c.childOrderBody(req)
	case "AllotmentStatement":
		body = c.orderStatusBody(req)
	case "UCCRegistration":
		body = mustJSON(map[string]string{"Status": CodeSuccess, "Message": "REGISTRATION SUCCESSFUL"})
	case "FATCAUpload":
		body = []byte(JoinPipe(CodeSuccess, "FATCA UPLOADED"))
	case "SchemeMasterDownload":
		body = []byte(mockSchemeMasterCSV)
	case "FileUpload":
		body = mustJSON(map[string]string{"Status": CodeSuccess, "Remarks": "FILE ACCEPTED"})
	case "BankMaster":
		body = mustJSON(map[string]string{"Status": CodeSuccess})
	default:
		body = mustJSON(map[string]string{"Status": CodeSuccess})
	}

	return &Envelope{StatusCode: 200, Body: body}, nil
}

func (c *MockClient) nextOrderNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderSeq++
	return fmt.Sprintf("MOCK%08d", c.orderSeq)
}

func (c *MockClient) nextRegNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regSeq++
	return fmt.Sprintf("MOCKREG%06d", c.regSeq)
}

func (c *MockClient) nextMandateID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mandSeq++
	return fmt.Sprintf("MOCKMND%06d", c.mandSeq)
}

// orderStatusBody advances an order one lifecycle step per poll:
// VALID on the first query, ALLOTTED from the second on.
func (c *MockClient) orderStatusBody(req Request) []byte {
	orderNo := extractRef(req.Body)

	c.mu.Lock()
	c.polls[orderNo]++
	n := c.polls[orderNo]
	c.mu.Unlock()

	detail := OrderStatusDetail{OrderNumber: orderNo, Status: "VALID"}
	if n > 1 {
		detail.Status = "ALLOTTED"
		detail.AllottedUnits = "10.5000"
		detail.AllottedNAV = "95.2381"
		detail.AllottedAmount = "1000.00"
		detail.AllotmentDate = "2026-01-15"
	}
	return mustJSON(OrderStatusResponse{
		Status: CodeSuccess,
		Orders: []OrderStatusDetail{detail},
	})
}

// mandateStatusBody approves a mandate on the second poll.
func (c *MockClient) mandateStatusBody(req Request) []byte {
	mandateID := extractRef(req.Body)

	c.mu.Lock()
	c.polls["m:"+mandateID]++
	n := c.polls["m:"+mandateID]
	c.mu.Unlock()

	detail := MandateStatusDetail{MandateID: mandateID, Status: "REGISTERED"}
	if n > 1 {
		detail.Status = "APPROVED"
		detail.UMRN = "MOCKUMRN" + mandateID
	}
	return mustJSON(MandateStatusResponse{
		Status:   CodeSuccess,
		Mandates: []MandateStatusDetail{detail},
	})
}

func (c *MockClient) childOrderBody(req Request) []byte {
	regNo := extractRef(req.Body)
	return mustJSON(ChildOrderResponse{
		Status: CodeSuccess,
		Orders: []ChildOrderDetail{
			{
				RegnNumber:    regNo,
				InstallmentNo: 1,
				OrderNumber:   "MOCKCHILD0001",
				Amount:        "1000.00",
				Units:         "10.5000",
				NAV:           "95.2381",
				Status:        "ALLOTTED",
			},
		},
	})
}

// extractRef pulls the subject identifier out of the request body. JSON
// bodies carry it in a known field; pipe bodies put it in a fixed position.
func extractRef(body []byte) string {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err == nil {
		for _, key := range []string{"OrderNo", "MandateId", "RegnNo", "SIPRegnNo"} {
			if v, ok := m[key].(string); ok && v != "" {
				return v
			}
		}
	}
	parts := strings.Split(string(body), "|")
	if len(parts) > 2 {
		return parts[2]
	}
	return "MOCK00000000"
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

const mockSchemeMasterCSV = `SchemeCode|SchemeName|ISIN|AMCCode|PurchaseAllowed|RedemptionAllowed|SIPAllowed|MinPurchaseAmt|MinSIPAmt
MOCK-GR|Mock Growth Fund Direct Growth|INF000000001|MOCKAMC|Y|Y|Y|5000|500
MOCK-DV|Mock Dividend Fund Direct IDCW|INF000000002|MOCKAMC|Y|Y|N|1000|
MOCK-LQ|Mock Liquid Fund Direct Growth|INF000000003|MOCKAMC|Y|Y|Y|1000|100
`
