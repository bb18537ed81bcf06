package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
)

type replaceQuoteItemsRequest struct {
	Items []lineitem.Item `json:"items"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req quotedomain.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.quoteSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.renderQuoteDetail(c, http.StatusCreated, detail)
}

func (s *Server) GetQuoteByID(c *gin.Context) {
	detail, err := s.quoteSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.renderQuoteDetail(c, http.StatusOK, detail)
}

func (s *Server) ReplaceQuoteItems(c *gin.Context) {
	var req replaceQuoteItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.quoteSvc.ReplaceItems(c.Request.Context(), quotedomain.ReplaceItemsRequest{
		ID:    strings.TrimSpace(c.Param("id")),
		Items: req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.renderQuoteDetail(c, http.StatusOK, detail)
}

func (s *Server) SendQuote(c *gin.Context) {
	quote, err := s.quoteSvc.Send(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

func (s *Server) AcceptQuote(c *gin.Context) {
	detail, err := s.quoteSvc.Accept(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.renderQuoteDetail(c, http.StatusOK, detail)
}

func (s *Server) RejectQuote(c *gin.Context) {
	quote, err := s.quoteSvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

// CreateInvoiceFromQuote converts an accepted quote into a draft invoice.
func (s *Server) CreateInvoiceFromQuote(c *gin.Context) {
	result, err := s.invoiceSvc.CreateFromQuote(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createFromQuoteResponse{
		InvoiceID:     result.InvoiceID.String(),
		InvoiceNumber: result.InvoiceNumber,
		QuoteID:       result.QuoteID.String(),
		Status:        string(result.Status),
		CreatedAt:     result.CreatedAt,
		Message:       result.Message,
	})
}

func (s *Server) renderQuoteDetail(c *gin.Context, status int, detail quotedomain.QuoteDetail) {
	resp, err := toQuoteDetailResponse(detail)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(status, resp)
}
