package handlers

import "github.com/gin-gonic/gin"

// Register mounts the checkout and transaction routes on the group.
func Register(group *gin.RouterGroup, checkout *CheckoutHandler, transactions *TransactionHandler) {
	group.POST("/payment", checkout.StartPayment)
	group.POST("/otp", checkout.VerifyOTP)
	group.GET("/success", checkout.Success)

	group.GET("/transactions", transactions.GetTransactions)
	group.GET("/transactions/:id", transactions.GetTransaction)
	group.GET("/customers/:customer_id/transactions", transactions.GetCustomerTransactions)
	group.GET("/reports/successful", transactions.GetSuccessful)
	group.GET("/reports/failed", transactions.GetFailed)
}
