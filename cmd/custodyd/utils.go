package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	timeout      = 15 * time.Second
	callerHeader = "X-Caller-Address"
)

type client struct {
	url    string
	caller string
	http   *http.Client
}

// getClient reads the server url and the caller from the flags, falling back to
// the CUSTODYD_SERVER_URL and CUSTODYD_CALLER env vars.
func getClient(ctx *cli.Context) *client {
	serverUrl := ctx.String(urlFlagName)
	if !ctx.IsSet(urlFlagName) && viper.GetString(urlFlagName) != "" {
		serverUrl = viper.GetString(urlFlagName)
	}
	caller := ctx.String(callerFlagName)
	if caller == "" {
		caller = viper.GetString(callerFlagName)
	}
	return &client{
		url:    strings.TrimSuffix(serverUrl, "/"),
		caller: caller,
		http:   &http.Client{Timeout: timeout},
	}
}

type errorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata"`
}

func (e errorResponse) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

func (c *client) do(method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.url+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	if len(c.caller) > 0 {
		req.Header.Add(callerHeader, c.caller)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		errResp := errorResponse{}
		if err := json.Unmarshal(buf, &errResp); err != nil || errResp.Name == "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, buf)
		}
		return nil, errResp
	}
	return buf, nil
}

func (c *client) get(path string) (json.RawMessage, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *client) post(path string, body any) (json.RawMessage, error) {
	return c.do(http.MethodPost, path, body)
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}

func printResponse(buf json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		fmt.Println("ok")
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf, "", "  "); err != nil {
		fmt.Println(string(buf))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
