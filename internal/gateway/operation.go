package gateway

import (
	"fmt"
	"net/url"
)

// Operation names one of the four remote gateway services.
type Operation string

const (
	Authentication    Operation = "authentication"
	PaymentInitiation Operation = "payment_initiation"
	PaymentRequest    Operation = "payment_request"
	PaymentConfirm    Operation = "payment_confirm"
)

var Operations = []Operation{Authentication, PaymentInitiation, PaymentRequest, PaymentConfirm}

// Method is the remote SOAP method invoked for the operation.
func (o Operation) Method() string {
	switch o {
	case Authentication:
		return "merc_online_authentication"
	case PaymentInitiation:
		return "merc_online_payment_initiation"
	case PaymentRequest:
		return "merc_online_payment_request"
	case PaymentConfirm:
		return "merc_online_payment_confirm"
	}
	return ""
}

func (o Operation) String() string { return string(o) }

// Endpoints holds one WSDL locator per operation.
type Endpoints struct {
	Authentication    string
	PaymentInitiation string
	PaymentRequest    string
	PaymentConfirm    string
}

func (e Endpoints) For(op Operation) string {
	switch op {
	case Authentication:
		return e.Authentication
	case PaymentInitiation:
		return e.PaymentInitiation
	case PaymentRequest:
		return e.PaymentRequest
	case PaymentConfirm:
		return e.PaymentConfirm
	}
	return ""
}

func (e Endpoints) Validate() error {
	for _, op := range Operations {
		locator := e.For(op)
		if locator == "" {
			return fmt.Errorf("WSDL URL for service '%s' is not defined", op)
		}
		u, err := url.Parse(locator)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("WSDL URL for service '%s' is invalid: %q", op, locator)
		}
	}
	return nil
}
