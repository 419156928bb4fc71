// Package hostapi is a client for the IPTV host's channel management API:
// listing streams/channels and creating/deleting the channels the channel
// lifecycle manager creates for matched event streams. Credentials travel
// via HTTP Basic auth and are never written to a log line — errors are
// built from safeHost(), which keeps only the host part of the base URL.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the host's admin API over HTTPS with Basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// New builds a Client. baseURL's trailing slash, if any, is trimmed.
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Stream is a single upstream video entry as the host reports it.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is a host-managed channel.
type Channel struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ChannelNumber int      `json:"channel_number"`
	StreamIDs     []string `json:"stream_ids"`
}

// ListStreams returns every stream the host currently carries.
func (c *Client) ListStreams(ctx context.Context) ([]Stream, error) {
	var result []Stream
	if err := c.apiCall(ctx, http.MethodGet, "/api/streams", nil, &result); err != nil {
		return nil, fmt.Errorf("hostapi: list streams: %w", err)
	}
	return result, nil
}

// ListChannels returns every channel currently on the host.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var result []Channel
	if err := c.apiCall(ctx, http.MethodGet, "/api/channels", nil, &result); err != nil {
		return nil, fmt.Errorf("hostapi: list channels: %w", err)
	}
	return result, nil
}

type createChannelRequest struct {
	Name          string   `json:"name"`
	ChannelNumber int      `json:"channel_number"`
	StreamIDs     []string `json:"stream_ids"`
}

// CreateChannel creates a new channel bound to a single stream.
func (c *Client) CreateChannel(ctx context.Context, name string, channelNumber int, streamID string) (*Channel, error) {
	body := createChannelRequest{Name: name, ChannelNumber: channelNumber, StreamIDs: []string{streamID}}
	var result Channel
	if err := c.apiCall(ctx, http.MethodPost, "/api/channels", body, &result); err != nil {
		return nil, fmt.Errorf("hostapi: create channel %q: %w", name, err)
	}
	return &result, nil
}

// DeleteChannel removes a channel. A 404 from the host is treated as
// success — the desired end state (channel gone) already holds.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	err := c.apiCall(ctx, http.MethodDelete, "/api/channels/"+url.PathEscape(channelID), nil, nil)
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return nil
	}
	return fmt.Errorf("hostapi: delete channel %s: %w", channelID, err)
}

type setEPGRequest struct {
	EPGSourceID string `json:"epg_source_id"`
}

// SetChannelEPG binds a channel directly to an EPG source on the host,
// bypassing tvg-id lookup.
func (c *Client) SetChannelEPG(ctx context.Context, channelID, epgSourceID string) error {
	body := setEPGRequest{EPGSourceID: epgSourceID}
	if err := c.apiCall(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/set-epg", body, nil); err != nil {
		return fmt.Errorf("hostapi: set epg for channel %s: %w", channelID, err)
	}
	return nil
}

// notFoundError distinguishes a host 404 from other failures.
type notFoundError struct{ status int }

func (e *notFoundError) Error() string { return fmt.Sprintf("hostapi: HTTP %d", e.status) }

func isNotFound(err error) bool {
	var nf *notFoundError
	for e := err; e != nil; {
		if n, ok := e.(*notFoundError); ok {
			nf = n
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return nf != nil && nf.status == http.StatusNotFound
}

// apiCall performs a single request against the host API with Basic auth,
// JSON-encoding reqBody (if non-nil) and JSON-decoding into dest (if
// non-nil). Errors reference only safeHost() — never the URL, which never
// carries credentials here since auth travels via header, not query string.
func (c *Client) apiCall(ctx context.Context, method, path string, reqBody, dest interface{}) error {
	var bodyReader *bytes.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", c.safeHost(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &notFoundError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.safeHost())
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response from %s: %w", c.safeHost(), err)
	}
	return nil
}

// safeHost returns only the host portion of baseURL for log/error output.
func (c *Client) safeHost() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "[unparseable]"
	}
	return u.Host
}
