package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

type fakeIdentityService struct {
	memberships []identitydomain.BusinessMember
}

func (f *fakeIdentityService) ResolveToken(ctx context.Context, rawToken string) (identitydomain.Actor, error) {
	_ = ctx
	if rawToken != testToken {
		return identitydomain.Actor{}, identitydomain.ErrInvalidToken
	}
	return identitydomain.Actor{Type: identitydomain.ActorTypeUser, UserID: snowflake.ID(31)}, nil
}

func (f *fakeIdentityService) Memberships(ctx context.Context, userID snowflake.ID) ([]identitydomain.BusinessMember, error) {
	_ = ctx
	_ = userID
	return f.memberships, nil
}

type fakeInvoiceService struct {
	fromQuoteErr error
	lastQuoteID  string
	lastBusiness snowflake.ID
	lastUpdate   invoicedomain.UpdateInvoiceRequest
	updateCalls  int
}

func (f *fakeInvoiceService) CreateFromQuote(ctx context.Context, quoteID string) (invoicedomain.CreateFromQuoteResult, error) {
	f.lastQuoteID = quoteID
	f.lastBusiness, _ = businesscontext.BusinessIDFromContext(ctx)
	if f.fromQuoteErr != nil {
		return invoicedomain.CreateFromQuoteResult{}, f.fromQuoteErr
	}
	return invoicedomain.CreateFromQuoteResult{
		InvoiceID:     snowflake.ID(9001),
		InvoiceNumber: "INV-000001",
		QuoteID:       snowflake.ID(42),
		Status:        invoicedomain.InvoiceStatusDraft,
		CreatedAt:     time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		Message:       "Invoice INV-000001 created from quote",
	}, nil
}

func (f *fakeInvoiceService) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.InvoiceDetail, error) {
	_ = ctx
	_ = req
	return invoicedomain.InvoiceDetail{}, nil
}

func (f *fakeInvoiceService) GetByID(ctx context.Context, id string) (invoicedomain.InvoiceDetail, error) {
	_ = ctx
	if id != "9001" {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrNotFound
	}
	inv := sampleInvoice()
	return invoicedomain.InvoiceDetail{
		Invoice: inv,
		Totals: invoicedomain.ComputedTotals{
			Subtotal:      inv.Subtotal,
			DiscountTotal: inv.DiscountTotal,
			VATTotal:      inv.VATTotal,
			Total:         inv.Total,
			AmountPaid:    inv.AmountPaid,
			BalanceDue:    inv.BalanceDue,
			Consistent:    true,
		},
	}, nil
}

func (f *fakeInvoiceService) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	_ = ctx
	_ = req
	return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{sampleInvoice()}}, nil
}

func (f *fakeInvoiceService) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	_ = ctx
	f.updateCalls++
	f.lastUpdate = req
	if req.Status != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrStatusChangeViaUpdate
	}
	inv := sampleInvoice()
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}
	return inv, nil
}

func (f *fakeInvoiceService) ChangeStatus(ctx context.Context, req invoicedomain.ChangeStatusRequest) (invoicedomain.Invoice, error) {
	_ = ctx
	_ = req
	return invoicedomain.Invoice{}, &invoicedomain.StateError{Op: "change status to paid", Status: invoicedomain.InvoiceStatusDraft}
}

func sampleInvoice() invoicedomain.Invoice {
	quoteID := snowflake.ID(42)
	return invoicedomain.Invoice{
		ID:            snowflake.ID(9001),
		BusinessID:    snowflake.ID(7000),
		ClientID:      snowflake.ID(7001),
		QuoteID:       &quoteID,
		InvoiceNumber: "INV-000001",
		IssueDate:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "EUR",
		Subtotal:      decimal.RequireFromString("200"),
		DiscountTotal: decimal.Zero,
		VATTotal:      decimal.RequireFromString("40"),
		Total:         decimal.RequireFromString("240"),
		AmountPaid:    decimal.Zero,
		BalanceDue:    decimal.RequireFromString("240"),
		Status:        invoicedomain.InvoiceStatusDraft,
	}
}

func newTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	srv.RegisterRoutes()
	return router
}

func doRequest(router http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	for k, v := range header {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func singleBusinessServer(invoiceSvc *fakeInvoiceService) *Server {
	return &Server{
		identitySvc: &fakeIdentityService{memberships: []identitydomain.BusinessMember{
			{BusinessID: snowflake.ID(7000), UserID: snowflake.ID(31), Role: authorization.RoleStaff},
		}},
		invoiceSvc: invoiceSvc,
	}
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body
}

func TestCreateInvoiceFromQuoteReturnsCreated(t *testing.T) {
	invoiceSvc := &fakeInvoiceService{}
	router := newTestRouter(singleBusinessServer(invoiceSvc))

	resp := doRequest(router, http.MethodPost, "/api/quotes/42/create-invoice", "", nil)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	body := decodeBody(t, resp)
	assert.Equal(t, "9001", body["invoice_id"])
	assert.Equal(t, "INV-000001", body["invoice_number"])
	assert.Equal(t, "42", body["quote_id"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, "Invoice INV-000001 created from quote", body["message"])
	assert.Equal(t, "42", invoiceSvc.lastQuoteID)
	assert.Equal(t, snowflake.ID(7000), invoiceSvc.lastBusiness)
}

func TestCreateInvoiceFromQuoteMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		errType  string
		contains string
	}{
		{
			name:     "unlocked quote",
			err:      &quotedomain.StateError{Op: "create invoice", Reason: "quote is not locked"},
			status:   http.StatusBadRequest,
			errType:  "invalid_state",
			contains: "cannot create invoice: quote is not locked",
		},
		{name: "missing snapshot", err: quotedomain.ErrNoSnapshotFound, status: http.StatusBadRequest, errType: "invalid_state"},
		{name: "empty", err: invoicedomain.ErrEmptyInvoice, status: http.StatusBadRequest, errType: "empty_invoice"},
		{name: "missing quote", err: quotedomain.ErrNotFound, status: http.StatusNotFound, errType: "not_found", contains: "quote not found"},
		{name: "already invoiced", err: quotedomain.ErrAlreadyInvoiced, status: http.StatusConflict, errType: "conflict"},
		{name: "forbidden", err: authorization.ErrForbidden, status: http.StatusForbidden, errType: "forbidden"},
		{name: "numbering", err: fmt.Errorf("allocate: %w", numbering.ErrNumberGenerationFailed), status: http.StatusInternalServerError, errType: "number_generation_failed"},
		{name: "persistence", err: invoicedomain.ErrPersistenceFailed, status: http.StatusInternalServerError, errType: "persistence_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(singleBusinessServer(&fakeInvoiceService{fromQuoteErr: tc.err}))

			resp := doRequest(router, http.MethodPost, "/api/quotes/42/create-invoice", "", nil)

			require.Equal(t, tc.status, resp.Code, resp.Body.String())
			body := decodeBody(t, resp)
			assert.Equal(t, tc.errType, body["type"])
			if tc.contains != "" {
				assert.Contains(t, body["error"], tc.contains)
			}
		})
	}
}

func TestMissingBearerTokenIsUnauthorized(t *testing.T) {
	invoiceSvc := &fakeInvoiceService{}
	router := newTestRouter(singleBusinessServer(invoiceSvc))

	resp := doRequest(router, http.MethodPost, "/api/quotes/42/create-invoice", "", map[string]string{"Authorization": ""})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, invoiceSvc.lastQuoteID)

	resp = doRequest(router, http.MethodGet, "/api/invoices/9001", "", map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestBusinessContextResolution(t *testing.T) {
	t.Run("no membership", func(t *testing.T) {
		srv := singleBusinessServer(&fakeInvoiceService{})
		srv.identitySvc = &fakeIdentityService{}
		router := newTestRouter(srv)

		resp := doRequest(router, http.MethodGet, "/api/invoices/9001", "", nil)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("several memberships need the header", func(t *testing.T) {
		srv := singleBusinessServer(&fakeInvoiceService{})
		srv.identitySvc = &fakeIdentityService{memberships: []identitydomain.BusinessMember{
			{BusinessID: snowflake.ID(7000)},
			{BusinessID: snowflake.ID(8000)},
		}}
		router := newTestRouter(srv)

		resp := doRequest(router, http.MethodGet, "/api/invoices/9001", "", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)

		invoiceSvc := &fakeInvoiceService{}
		srv.invoiceSvc = invoiceSvc
		resp = doRequest(router, http.MethodPost, "/api/quotes/42/create-invoice", "", map[string]string{HeaderBusiness: "8000"})
		require.Equal(t, http.StatusCreated, resp.Code)
		assert.Equal(t, snowflake.ID(8000), invoiceSvc.lastBusiness)
	})

	t.Run("malformed header", func(t *testing.T) {
		router := newTestRouter(singleBusinessServer(&fakeInvoiceService{}))

		resp := doRequest(router, http.MethodGet, "/api/invoices/9001", "", map[string]string{HeaderBusiness: "acme"})
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestGetInvoiceRendersMoneyAsFixedStrings(t *testing.T) {
	router := newTestRouter(singleBusinessServer(&fakeInvoiceService{}))

	resp := doRequest(router, http.MethodGet, "/api/invoices/9001", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decodeBody(t, resp)
	assert.Equal(t, "200.00", body["subtotal"])
	assert.Equal(t, "40.00", body["vat_total"])
	assert.Equal(t, "240.00", body["total"])
	assert.Equal(t, "2026-06-01", body["issue_date"])
	assert.Equal(t, "2026-07-01", body["due_date"])
	totals, ok := body["totals"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, totals["consistent"])

	resp = doRequest(router, http.MethodGet, "/api/invoices/123", "", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "invoice not found", decodeBody(t, resp)["error"])
}

func TestListInvoicesWrapsData(t *testing.T) {
	router := newTestRouter(singleBusinessServer(&fakeInvoiceService{}))

	resp := doRequest(router, http.MethodGet, "/api/invoices?page_size=10&status=draft", "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := decodeBody(t, resp)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Contains(t, body, "page_info")

	resp = doRequest(router, http.MethodGet, "/api/invoices?page_size=1000", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", decodeBody(t, resp)["type"])
}

func TestUpdateInvoiceRejectsStatusAndUnknownFields(t *testing.T) {
	invoiceSvc := &fakeInvoiceService{}
	router := newTestRouter(singleBusinessServer(invoiceSvc))

	resp := doRequest(router, http.MethodPatch, "/api/invoices/9001", `{"status":"paid"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "status_change_not_allowed", body["type"])
	assert.Contains(t, body["error"], "/api/invoices/{id}/status")

	resp = doRequest(router, http.MethodPatch, "/api/invoices/9001", `{"totl":"1"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", decodeBody(t, resp)["type"])
	assert.Equal(t, 1, invoiceSvc.updateCalls)

	resp = doRequest(router, http.MethodPatch, "/api/invoices/9001", `{"notes":"net 30"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "net 30", decodeBody(t, resp)["notes"])
	assert.Equal(t, "9001", invoiceSvc.lastUpdate.ID)
}

func TestChangeInvoiceStatusReportsInvalidTransition(t *testing.T) {
	router := newTestRouter(singleBusinessServer(&fakeInvoiceService{}))

	resp := doRequest(router, http.MethodPost, "/api/invoices/9001/status", `{"status":"paid"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid_state", body["type"])
	assert.Equal(t, "cannot change status to paid: invoice is draft", body["error"])
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	invoiceSvc := &fakeInvoiceService{}
	srv := singleBusinessServer(invoiceSvc)
	srv.createLimiter = nil
	router := newTestRouter(srv)

	for i := 0; i < 3; i++ {
		resp := doRequest(router, http.MethodPost, "/api/quotes/42/create-invoice", "", nil)
		require.Equal(t, http.StatusCreated, resp.Code)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{authorization.ErrInvalidActor, http.StatusUnauthorized, "unauthorized"},
		{identitydomain.ErrNoBusiness, http.StatusForbidden, "forbidden"},
		{clientdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{invoicedomain.ErrInvoiceNumberTaken, http.StatusConflict, "conflict"},
		{invoicedomain.ErrDueBeforeIssue, http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("bad: %w", invoicedomain.ErrInvalidStatus), http.StatusBadRequest, "validation_error"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typ, payload.Type, tc.err.Error())
	}

	lineErr := &lineitem.ValidationError{Issues: []lineitem.Issue{{Field: "items[0].unit_price", Code: "negative", Message: "unit price must not be negative"}}}
	status, payload := mapError(lineErr)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Details, 1)
	assert.Equal(t, "items[0].unit_price", payload.Details[0].Field)

	status, payload = mapError(invoicedomain.ErrDueBeforeIssue)
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Details, 1)
	assert.Equal(t, "due_date", payload.Details[0].Field)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(invoicedomain.ErrPersistenceFailed)
	assert.Equal(t, "internal", kind)
	assert.Equal(t, "persistence_failed", code)

	kind, code = classifyErrorForLog(quotedomain.ErrAlreadyInvoiced)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "conflict", code)
}
