package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/ledger"
	"esadad-service/internal/services"
	"esadad-service/pkg/common"
)

const dateLayout = "2006-01-02"

type Transactions interface {
	List(ctx context.Context, filter ledger.Filter) (common.PaginationResult, error)
	Find(ctx context.Context, id uint) (*services.TransactionView, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]services.TransactionView, error)
	Successful(ctx context.Context) ([]services.TransactionView, error)
	Failed(ctx context.Context) ([]services.TransactionView, error)
}

type TransactionQuery struct {
	Status        string `form:"status"`
	CustomerID    string `form:"customer_id"`
	InvoiceID     string `form:"invoice_id"`
	BankTrxID     string `form:"bank_trx_id"`
	GatewayTrxID  string `form:"gateway_trx_id"`
	From          string `form:"from_date"`
	To            string `form:"to_date"`
	SortField     string `form:"sort_field"`
	SortDirection string `form:"sort_direction"`
	Page          int    `form:"page"`
	Limit         int    `form:"limit"`
}

func (q TransactionQuery) Filter() (ledger.Filter, error) {
	f := ledger.Filter{
		Status:        q.Status,
		CustomerID:    q.CustomerID,
		InvoiceID:     q.InvoiceID,
		BankTrxID:     q.BankTrxID,
		GatewayTrxID:  q.GatewayTrxID,
		SortField:     q.SortField,
		SortDirection: q.SortDirection,
		Page:          q.Page,
		Limit:         q.Limit,
	}
	if q.From != "" {
		from, err := time.Parse(dateLayout, q.From)
		if err != nil {
			return f, err
		}
		f.From = &from
	}
	if q.To != "" {
		to, err := time.Parse(dateLayout, q.To)
		if err != nil {
			return f, err
		}
		// inclusive of the whole day
		to = to.Add(24*time.Hour - time.Nanosecond)
		f.To = &to
	}
	return f, nil
}

type TransactionHandler struct {
	transactions Transactions
	log          logrus.FieldLogger
}

func NewTransactionHandler(transactions Transactions, log logrus.FieldLogger) *TransactionHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TransactionHandler{transactions: transactions, log: log}
}

func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	var query TransactionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}
	filter, err := query.Filter()
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid date, expected YYYY-MM-DD", nil, http.StatusBadRequest))
		return
	}

	result, err := h.transactions.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid transaction id", nil, http.StatusBadRequest))
		return
	}

	view, err := h.transactions.Find(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(view, "success"))
}

func (h *TransactionHandler) GetCustomerTransactions(c *gin.Context) {
	h.writeViews(c, func(ctx context.Context) ([]services.TransactionView, error) {
		return h.transactions.FindByCustomerID(ctx, c.Param("customer_id"))
	})
}

// GetSuccessful lists transactions the gateway accepted.
func (h *TransactionHandler) GetSuccessful(c *gin.Context) {
	h.writeViews(c, h.transactions.Successful)
}

func (h *TransactionHandler) GetFailed(c *gin.Context) {
	h.writeViews(c, h.transactions.Failed)
}

func (h *TransactionHandler) writeViews(c *gin.Context, list func(ctx context.Context) ([]services.TransactionView, error)) {
	views, err := list(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(views, "success"))
}
