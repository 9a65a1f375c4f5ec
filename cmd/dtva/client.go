package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
	Out       io.Writer
}

// apiError es una respuesta no 2xx.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(e.Body, &body) == nil && body.Code != "" {
		msg := fmt.Sprintf("status=%d %s: %s", e.Status, body.Code, body.Message)
		if body.Detail != "" {
			msg += " (" + body.Detail + ")"
		}
		return msg
	}
	return fmt.Sprintf("status=%d body=%s", e.Status, strings.TrimSpace(string(e.Body)))
}

func (c *client) do(method, path string, payload any) (int, http.Header, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, err
		}
		body = bytes.NewReader(b)
	}
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Admin-API-Key", c.APIKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Las escrituras en un follower se redirigen al líder si está configurado.
	req.Header.Set("X-Leader-Redirect", "1")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, err
	}
	return resp.StatusCode, resp.Header, b, nil
}

// call hace el request y falla con apiError en status no 2xx.
func (c *client) call(method, path string, payload any) error {
	status, hdr, body, err := c.do(method, path, payload)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &apiError{Status: status, Body: body}
	}
	c.print(status, hdr, body)
	return nil
}

func (c *client) print(status int, hdr http.Header, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(c.Out, string(p))
			return
		}
	}
	if loc := hdr.Get("Location"); loc != "" && status == http.StatusAccepted {
		fmt.Fprintf(c.Out, "status=%d location=%s\n", status, loc)
	}
	if len(body) > 0 {
		fmt.Fprintln(c.Out, strings.TrimSpace(string(body)))
	} else {
		fmt.Fprintf(c.Out, "status=%d\n", status)
	}
}
