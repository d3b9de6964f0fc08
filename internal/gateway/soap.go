package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esadad-service/pkg/common"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

type SOAPOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	// Namespace qualifies the operation element when set.
	Namespace string
	// HTTPClient overrides the client built from Timeout and InsecureSkipVerify.
	HTTPClient *http.Client
}

// SOAPDialer returns a Dialer that posts document/literal SOAP 1.1 envelopes
// to the service address derived from each WSDL locator.
func SOAPDialer(opts SOAPOptions) Dialer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
		if opts.InsecureSkipVerify {
			client.Transport = &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			}
		}
	}

	return func(op Operation, endpoint string) (Conn, error) {
		address, err := serviceAddress(endpoint)
		if err != nil {
			return nil, err
		}
		return &soapConn{address: address, namespace: opts.Namespace, client: client}, nil
	}
}

// serviceAddress strips the ?wsdl query from a WSDL locator.
func serviceAddress(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	q := u.Query()
	for key := range q {
		if strings.EqualFold(key, "wsdl") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type soapConn struct {
	address   string
	namespace string
	client    *http.Client
}

func (c *soapConn) Call(ctx context.Context, method string, params Params) (map[string]string, error) {
	body, err := encodeEnvelope(method, c.namespace, params)
	if err != nil {
		return nil, err
	}

	status, raw, err := common.PostXML(ctx, c.client, c.address, body, map[string]string{
		"SOAPAction": `"` + method + `"`,
	})
	if err != nil {
		return nil, err
	}

	fields, err := decodeEnvelope(raw)
	if err != nil {
		var fault *FaultError
		if status >= http.StatusBadRequest && !errors.As(err, &fault) {
			return nil, fmt.Errorf("unexpected HTTP status %d: %w", status, err)
		}
		return nil, err
	}
	if status >= http.StatusBadRequest && len(fields) == 0 {
		return nil, fmt.Errorf("unexpected HTTP status %d", status)
	}
	return fields, nil
}

func encodeEnvelope(method, namespace string, params Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)

	envelope := xml.StartElement{
		Name: xml.Name{Local: "soapenv:Envelope"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:soapenv"}, Value: soapEnvelopeNS}},
	}
	body := xml.StartElement{Name: xml.Name{Local: "soapenv:Body"}}
	call := xml.StartElement{Name: xml.Name{Local: method}}
	if namespace != "" {
		call.Name.Local = "ns:" + method
		call.Attr = []xml.Attr{{Name: xml.Name{Local: "xmlns:ns"}, Value: namespace}}
	}

	tokens := []xml.Token{envelope, xml.StartElement{Name: xml.Name{Local: "soapenv:Header"}}, xml.EndElement{Name: xml.Name{Local: "soapenv:Header"}}, body, call}
	for _, t := range tokens {
		if err := enc.EncodeToken(t); err != nil {
			return nil, err
		}
	}
	if err := encodeParams(enc, params); err != nil {
		return nil, err
	}
	for _, t := range []xml.Token{call.End(), body.End(), envelope.End()} {
		if err := enc.EncodeToken(t); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeParams(enc *xml.Encoder, params Params) error {
	for _, f := range params {
		start := xml.StartElement{Name: xml.Name{Local: f.Name}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if nested, ok := f.Value.(Params); ok {
			if err := encodeParams(enc, nested); err != nil {
				return err
			}
		} else if f.Value != nil {
			if err := enc.EncodeToken(xml.CharData(fmt.Sprint(f.Value))); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(start.End()); err != nil {
			return err
		}
	}
	return nil
}

// decodeEnvelope flattens the leaf elements under soap:Body into a map keyed by
// local name. The first occurrence of a name wins.
func decodeEnvelope(raw []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var (
		fields   = map[string]string{}
		text     strings.Builder
		hasChild []bool
		inBody   bool
		sawBody  bool
		inFault  bool
		fault    FaultError
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed SOAP response: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(hasChild) > 0 {
				hasChild[len(hasChild)-1] = true
			}
			hasChild = append(hasChild, false)
			text.Reset()
			switch {
			case t.Name.Local == "Body" && !inBody:
				inBody, sawBody = true, true
			case inBody && t.Name.Local == "Fault":
				inFault = true
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			name := t.Name.Local
			leaf := !hasChild[len(hasChild)-1]
			hasChild = hasChild[:len(hasChild)-1]

			if name == "Body" {
				inBody = false
			}
			if !inBody || !leaf {
				text.Reset()
				continue
			}
			value := strings.TrimSpace(text.String())
			text.Reset()

			if inFault {
				switch name {
				case "faultcode", "Value":
					if fault.Code == "" {
						fault.Code = value
					}
				case "faultstring", "Text":
					if fault.String == "" {
						fault.String = value
					}
				}
				continue
			}
			if _, exists := fields[name]; !exists {
				fields[name] = value
			}
		}
	}

	if !sawBody {
		return nil, fmt.Errorf("malformed SOAP response: no Body element")
	}
	if inFault {
		return nil, &fault
	}
	return fields, nil
}
