package gateway

import "fmt"

const SuccessCode = "000"

// Response is the normalized result of any gateway operation. A non-success
// ErrorCode is a business outcome, not an error.
type Response struct {
	ErrorCode        string            `json:"errorCode"`
	ErrorDescription string            `json:"errorDescription"`
	TokenKey         string            `json:"tokenKey,omitempty"`
	ExpiryDate       string            `json:"expiryDate,omitempty"`
	BankTrxID        string            `json:"bankTrxId,omitempty"`
	GatewayTrxID     string            `json:"sepTrxId,omitempty"`
	InvoiceID        string            `json:"invoiceId,omitempty"`
	StmtDate         string            `json:"stmtDate,omitempty"`
	FromCache        bool              `json:"fromCache,omitempty"`
	Fields           map[string]string `json:"-"`
}

// NewResponse builds a Response from the flattened gateway payload. A payload
// without errorCode is malformed.
func NewResponse(fields map[string]string) (*Response, error) {
	code, ok := fields["errorCode"]
	if !ok {
		return nil, fmt.Errorf("malformed gateway response: missing errorCode")
	}
	return &Response{
		ErrorCode:        code,
		ErrorDescription: fields["errorDescription"],
		TokenKey:         fields["tokenKey"],
		ExpiryDate:       fields["expiryDate"],
		BankTrxID:        fields["bankTrxId"],
		GatewayTrxID:     fields["sepTrxId"],
		InvoiceID:        fields["invoiceId"],
		StmtDate:         fields["stmtDate"],
		Fields:           fields,
	}, nil
}

func (r *Response) Successful() bool {
	return r != nil && r.ErrorCode == SuccessCode
}

// Map returns the raw payload for persistence.
func (r *Response) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["errorCode"] = r.ErrorCode
	out["errorDescription"] = r.ErrorDescription
	if r.FromCache {
		out["fromCache"] = true
	}
	return out
}

// Clone returns a copy that does not share the field map.
func (r *Response) Clone() *Response {
	c := *r
	if r.Fields != nil {
		c.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}
