package authority

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"broadcast-director/internal/pipeline"
)

const (
	rpcTimeout       = 10 * time.Second
	reconnectBackoff = 2 * time.Second
)

// RejectionError reports a control request the authority rejected. The
// record is unchanged; re-issuing the request is always safe.
type RejectionError struct {
	Reason string
}

// Error implements error.
func (e *RejectionError) Error() string {
	return "control request rejected: " + e.Reason
}

// Client is a non-host peer's view of the authority: request/release calls
// go over HTTP to the authoritative peer, record changes come back over the
// event stream. It satisfies the pipeline's ControlRequester.
type Client struct {
	base   string
	peerID string
	log    *slog.Logger
	rpc    *http.Client
	stream *http.Client
}

// NewClient returns a client for the authority at base (e.g.
// "http://host:8080"). peerID identifies this peer on the event stream.
func NewClient(base, peerID string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		peerID: peerID,
		log:    log,
		rpc:    &http.Client{Timeout: rpcTimeout},
		// The event stream stays open indefinitely, so no client timeout.
		stream: &http.Client{},
	}
}

// RequestControl asks the authority for ownership of a live slot. A
// rejection comes back as a *RejectionError; transport failures are plain
// errors. Either way the next request simply re-issues the intent.
func (c *Client) RequestControl(slot pipeline.Slot, sourceID, requesterID string) error {
	body, err := json.Marshal(controlRequest{SourceID: sourceID, RequesterID: requesterID})
	if err != nil {
		return fmt.Errorf("marshal control request: %w", err)
	}

	resp, err := c.rpc.Post(c.base+"/v1/slots/"+url.PathEscape(string(slot))+"/control",
		"application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post control request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		var out controlResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Reason == "" {
			return &RejectionError{Reason: resp.Status}
		}
		return &RejectionError{Reason: out.Reason}
	default:
		return fmt.Errorf("control request: unexpected status %s", resp.Status)
	}
}

// ReleaseControl releases a slot this peer owns. The return reports whether
// the authoritative record changed; transport failures report false.
func (c *Client) ReleaseControl(slot pipeline.Slot, requesterID string) bool {
	body, err := json.Marshal(releaseRequest{RequesterID: requesterID})
	if err != nil {
		return false
	}

	resp, err := c.rpc.Post(c.base+"/v1/slots/"+url.PathEscape(string(slot))+"/release",
		"application/json", bytes.NewReader(body))
	if err != nil {
		c.log.Warn("release request failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	var out releaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Released
}

// Records fetches the current authoritative records.
func (c *Client) Records(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/slots", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch records: unexpected status %s", resp.Status)
	}
	var out struct {
		Records []Record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return out.Records, nil
}

// Run consumes the authority's event stream until the context ends, handing
// every change to apply in arrival order. The connection is retried with a
// fixed backoff; each reconnect replays the currently active records first,
// so a peer that was away converges like a late joiner.
func (c *Client) Run(ctx context.Context, apply func(Change)) error {
	for {
		err := c.consume(ctx, apply)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("event stream interrupted, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", reconnectBackoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

// consume opens one event stream connection and applies changes until it
// breaks.
func (c *Client) consume(ctx context.Context, apply func(Change)) error {
	u := c.base + "/v1/events?peer_id=" + url.QueryEscape(c.peerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: unexpected status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			var change Change
			if err := json.Unmarshal(data, &change); err != nil {
				c.log.Warn("bad change payload", slog.String("error", err.Error()))
			} else {
				apply(change)
			}
			data = nil
		case strings.HasPrefix(line, "data: "):
			data = append(data, line[len("data: "):]...)
		default:
			// event names and keepalive comments carry no payload
		}
	}
	return scanner.Err()
}

func errString(err error) string {
	if err == nil {
		return "stream closed"
	}
	return err.Error()
}
