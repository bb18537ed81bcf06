package authorization

const (
	ObjectClient   = "client"
	ObjectQuote    = "quote"
	ObjectInvoice  = "invoice"
	ObjectAuditLog = "audit_log"
)

const (
	ActionClientView   = "client.view"
	ActionClientCreate = "client.create"

	ActionQuoteView    = "quote.view"
	ActionQuoteCreate  = "quote.create"
	ActionQuoteUpdate  = "quote.update"
	ActionQuoteSend    = "quote.send"
	ActionQuoteAccept  = "quote.accept"
	ActionQuoteReject  = "quote.reject"
	ActionQuoteConvert = "quote.convert"

	ActionInvoiceView   = "invoice.view"
	ActionInvoiceCreate = "invoice.create"
	ActionInvoiceUpdate = "invoice.update"
	ActionInvoiceStatus = "invoice.status"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleAccountant = "accountant"
	RoleClient     = "client"
	RoleSystem     = "system"
)

type capability struct {
	object string
	action string
}

var documentWork = []capability{
	{ObjectClient, ActionClientView},
	{ObjectClient, ActionClientCreate},
	{ObjectQuote, ActionQuoteView},
	{ObjectQuote, ActionQuoteCreate},
	{ObjectQuote, ActionQuoteUpdate},
	{ObjectQuote, ActionQuoteSend},
	{ObjectQuote, ActionQuoteAccept},
	{ObjectQuote, ActionQuoteReject},
	{ObjectQuote, ActionQuoteConvert},
	{ObjectInvoice, ActionInvoiceView},
	{ObjectInvoice, ActionInvoiceCreate},
	{ObjectInvoice, ActionInvoiceUpdate},
	{ObjectInvoice, ActionInvoiceStatus},
}

// rolePolicies is the capability set of every membership role. Accountants
// read but never write; clients only answer the quotes sent to them.
var rolePolicies = map[string][]capability{
	RoleAdmin: append([]capability{{ObjectAuditLog, ActionAuditLogView}}, documentWork...),
	RoleStaff: documentWork,
	RoleAccountant: {
		{ObjectClient, ActionClientView},
		{ObjectQuote, ActionQuoteView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectAuditLog, ActionAuditLogView},
	},
	RoleClient: {
		{ObjectQuote, ActionQuoteView},
		{ObjectQuote, ActionQuoteAccept},
		{ObjectQuote, ActionQuoteReject},
	},
	RoleSystem: documentWork,
}

func roleSubject(role string) string {
	return "role:" + role
}
