package constants

// RequestStatus is the canonical lifecycle status for a purchase request.
type RequestStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED" // terminal
	StatusRejected RequestStatus = "REJECTED" // terminal
)

// IsTerminal reports whether no further transitions are permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is the outcome recorded on a single approval step.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// WorkflowRoles is the fixed, ordered approval chain. Level k (1-based)
// is signed off by WorkflowRoles[k-1].
var WorkflowRoles = []string{
	"APPROVER_L1",
	"APPROVER_L2",
}

// ExtractionMethod flags how a document's fields were obtained.
const (
	ExtractionMethodAI     = "ai"
	ExtractionMethodRegex  = "regex"
	ExtractionMethodFailed = "failed"
)

// DocumentKind identifies an artifact attached to a request.
type DocumentKind string

const (
	DocProforma      DocumentKind = "proforma"
	DocPurchaseOrder DocumentKind = "purchase_order"
	DocReceipt       DocumentKind = "receipt"
)
