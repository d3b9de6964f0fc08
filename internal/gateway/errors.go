package gateway

import (
	"errors"
	"fmt"
)

// TransportError is any failure to obtain a well-formed response: dial errors,
// network faults, SOAP faults and malformed payloads.
type TransportError struct {
	Operation Operation
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// FaultError is a SOAP Fault returned by the remote endpoint.
type FaultError struct {
	Code   string
	String string
}

func (e *FaultError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("SOAP fault: %s", e.String)
	}
	return fmt.Sprintf("SOAP fault [%s]: %s", e.Code, e.String)
}
