package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Conn is a connection bound to a single remote operation endpoint.
type Conn interface {
	Call(ctx context.Context, method string, params Params) (map[string]string, error)
}

// Dialer opens the connection for an operation.
type Dialer func(op Operation, endpoint string) (Conn, error)

// Client dispatches the four gateway operations. Each operation gets one
// connection, opened on first use and kept for the lifetime of the Client.
type Client struct {
	endpoints Endpoints
	dial      Dialer

	mu    sync.Mutex
	conns map[Operation]Conn
}

func NewClient(endpoints Endpoints, dial Dialer) (*Client, error) {
	if err := endpoints.Validate(); err != nil {
		return nil, err
	}
	if dial == nil {
		return nil, fmt.Errorf("gateway dialer is required")
	}
	return &Client{
		endpoints: endpoints,
		dial:      dial,
		conns:     make(map[Operation]Conn, len(Operations)),
	}, nil
}

func (c *Client) conn(op Operation) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[op]; ok {
		return conn, nil
	}
	endpoint := c.endpoints.For(op)
	if endpoint == "" {
		return nil, fmt.Errorf("unknown gateway operation %q", op)
	}
	conn, err := c.dial(op, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	c.conns[op] = conn
	return conn, nil
}

// Invoke calls op and returns the normalized response. Every non-nil error is
// a *TransportError.
func (c *Client) Invoke(ctx context.Context, op Operation, params Params) (*Response, error) {
	start := time.Now()
	resp, err := c.invoke(ctx, op, params)
	metrics.GetOrCreateHistogram(fmt.Sprintf(`esadad_gateway_call_duration_seconds{operation=%q}`, op)).UpdateDuration(start)

	result := "success"
	switch {
	case err != nil:
		result = "transport_error"
	case !resp.Successful():
		result = "business_error"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`esadad_gateway_calls_total{operation=%q,result=%q}`, op, result)).Inc()
	return resp, err
}

func (c *Client) invoke(ctx context.Context, op Operation, params Params) (*Response, error) {
	conn, err := c.conn(op)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}
	fields, err := conn.Call(ctx, op.Method(), params)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}
	resp, err := NewResponse(fields)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}
	return resp, nil
}

func (c *Client) Authenticate(ctx context.Context, merchantCode, password string) (*Response, error) {
	return c.Invoke(ctx, Authentication, AuthenticationParams(merchantCode, password))
}

func (c *Client) InitiatePayment(ctx context.Context, merchantCode, tokenKey string, rec InitiationRecord) (*Response, error) {
	return c.Invoke(ctx, PaymentInitiation, OperationParams(merchantCode, tokenKey, rec.Params()))
}

func (c *Client) RequestPayment(ctx context.Context, merchantCode, tokenKey string, rec PaymentRecord) (*Response, error) {
	return c.Invoke(ctx, PaymentRequest, OperationParams(merchantCode, tokenKey, rec.Params()))
}

func (c *Client) ConfirmPayment(ctx context.Context, merchantCode, tokenKey string, rec ConfirmationRecord) (*Response, error) {
	return c.Invoke(ctx, PaymentConfirm, OperationParams(merchantCode, tokenKey, rec.Params()))
}
