package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTP aliases for readibility
type HTTPHeader map[string]string
type HTTPBody []byte

func (h HTTPHeader) Authorization(accessToken string) HTTPHeader {
	if accessToken != "" {
		h["Authorization"] = fmt.Sprintf("Bearer %s", accessToken)
	}
	return h
}

func (h HTTPHeader) ContentType(contentType string) HTTPHeader {
	h["Content-Type"] = contentType
	return h
}

// MakeRequest() is a wrapper function that condenses simple HTTP
// requests done to a single call.
//
// Returns a HTTP response object, response body as byte array, and any
// error that may have occurred with making the request.
func MakeRequest(client *http.Client, url string, httpMethod string, body HTTPBody, header HTTPHeader) (*http.Response, HTTPBody, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequest(httpMethod, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create new HTTP request: %v", err)
	}
	req.Header.Add("User-Agent", "pductl")
	for k, v := range header {
		req.Header.Add(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to make request: %v", err)
	}
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if err := res.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close response resource")
	}
	return res, b, err
}

// do sends in as JSON (when non-nil) and decodes the JSON response into out.
func (c *Client) do(method, path string, in, out any) error {
	var body HTTPBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal data for request: %v", err)
		}
		body = b
	}

	res, b, err := MakeRequest(c.Client, c.url(path), method, body, c.headers())
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, res.Status, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %v", path, err)
	}
	return nil
}
