package common

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// PostXML sends an XML body and returns the status code and raw response body.
// Non-2xx statuses are not treated as errors; SOAP faults arrive with 500.
func PostXML(ctx context.Context, client *http.Client, urlStr string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
