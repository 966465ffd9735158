package remotesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/syncer"
)

const maxErrorBody = 4 << 10

type (
	// Client talks to the attendance API (apps/api) on behalf of a kiosk.
	Client struct {
		baseURL  string
		apiKey   string
		deviceID string
		http     *http.Client
	}

	bulkResponse struct {
		Success  bool             `json:"success"`
		Synced   int              `json:"synced"`
		Accepted []attendance.Key `json:"accepted,omitempty"`
	}

	errorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
)

var (
	_ syncer.RemoteStore = (*Client)(nil)
	_ syncer.Prober      = (*Client)(nil)
)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL:  strings.TrimRight(conf.Sync.RemoteURL, "/"),
		apiKey:   conf.Sync.APIKey,
		deviceID: conf.Kiosk.DeviceID,
		http:     &http.Client{Timeout: conf.Sync.RequestTimeout},
	}
}

// BulkUpsert posts the batch records. Network failures, timeouts, 408, 429 and 5xx responses are
// transient; any other 4xx rejects the batch.
func (c *Client) BulkUpsert(ctx context.Context, batch syncer.Batch) (syncer.Ack, error) {
	records := batch.Records
	if records == nil {
		records = []attendance.Mark{}
	}
	var res bulkResponse
	err := c.do(ctx, http.MethodPost, "/v1/attendance/bulk", records, &res, http.Header{"X-Batch-ID": {batch.ID}})
	if err != nil {
		return syncer.Ack{}, err
	}
	return syncer.Ack{Accepted: res.Accepted}, nil
}

// Probe checks that the API answers its health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// PutIdentity mirrors a local enrollment to the remote face registry.
func (c *Client) PutIdentity(ctx context.Context, idt identity.EnrolledIdentity) error {
	body := identity.NewIdentity{
		ID:            idt.ID,
		ExternalRef:   idt.ExternalRef,
		DisplayName:   idt.DisplayName,
		Descriptor:    idt.Descriptor,
		NotifyAddress: idt.NotifyAddress,
	}
	return c.do(ctx, http.MethodPut, "/v1/faces/"+strconv.FormatInt(idt.ID, 10), body, nil, nil)
}

// ListIdentities downloads the remote face registry.
func (c *Client) ListIdentities(ctx context.Context) ([]identity.EnrolledIdentity, error) {
	var idts []identity.EnrolledIdentity
	if err := c.do(ctx, http.MethodGet, "/v1/faces", nil, &idts, nil); err != nil {
		return nil, err
	}
	return idts, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, header http.Header) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "building request %s %s", method, path)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var uErr *url.Error
		if errors.As(err, &uErr) {
			err = uErr.Err
		}
		return &syncer.TransientError{Err: errors.Wrapf(err, "%s %s", method, path)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &syncer.TransientError{Err: errors.Wrapf(err, "decoding %s %s response", method, path)}
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var eRes errorResponse
	if json.Unmarshal(raw, &eRes) == nil {
		switch {
		case eRes.Message != "":
			msg = eRes.Message
		case eRes.Error != "":
			msg = eRes.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	code := resp.StatusCode
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return &syncer.RejectedError{Status: code, Message: msg}
	}
	return &syncer.TransientError{Err: errors.Errorf("remote answered %d: %s", code, msg)}
}
