package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for the plant's ERP order interface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Response is the common envelope on every ERP reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func checkResponse(resp *Response) error {
	if resp.Code != 0 {
		return fmt.Errorf("erp error %d: %s", resp.Code, resp.Message)
	}
	return nil
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("erp GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decode(resp, path, out)
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("erp encode %s: %w", path, err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("erp POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decode(resp, path, out)
}

func decode(resp *http.Response, path string, out any) error {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("erp %s: status %d: %s", path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("erp decode %s: %w", path, err)
	}
	return nil
}

// Ping checks reachability of the ERP endpoint.
func (c *Client) Ping() error {
	var resp Response
	if err := c.get("/ping", &resp); err != nil {
		return err
	}
	return checkResponse(&resp)
}
