package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billdomain "github.com/smallbiznis/aurum/internal/bill/domain"
	"github.com/smallbiznis/aurum/internal/money"
)

type billTotals struct {
	Subtotal    string `json:"subtotal"`
	Discount    string `json:"discount"`
	FinalAmount string `json:"final_amount"`
	AmountPaid  string `json:"amount_paid"`
	Due         string `json:"due"`
}

type billView struct {
	*billdomain.Bill
	Display billTotals `json:"display"`
}

func (s *Server) billView(b *billdomain.Bill) billView {
	currency := s.storeConfig.Get().Currency
	return billView{
		Bill: b,
		Display: billTotals{
			Subtotal:    money.Format(b.Subtotal, currency),
			Discount:    money.Format(b.Discount, currency),
			FinalAmount: money.Format(b.FinalAmount, currency),
			AmountPaid:  money.Format(b.AmountPaid, currency),
			Due:         money.Format(b.Unpaid(), currency),
		},
	}
}

func (s *Server) CreateBill(c *gin.Context) {
	var req billdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": s.billView(resp)})
}

func (s *Server) GetBill(c *gin.Context) {
	resp, err := s.billSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.billView(resp)})
}

func (s *Server) GetBillReceipt(c *gin.Context) {
	bill, err := s.billSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.receipts.Render(c.Request.Context(), bill, s.storeConfig.Get())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+bill.BillNumber+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) DeleteBill(c *gin.Context) {
	if err := s.billSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
