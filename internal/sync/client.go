package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"practice-sync-client/internal/store"
)

// ConnectivityProbe reports whether the remote store is reachable. Abstracted
// so hosts can plug in a platform connectivity signal and tests can fake it.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe considers the remote reachable if the base URL answers at all;
// the response status does not matter.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(baseURL string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    strings.TrimRight(baseURL, "/") + "/health",
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// RemoteClient translates queued operations into calls against the remote
// per-resource endpoints.
type RemoteClient struct {
	baseURL           string
	correlationHeader string
	client            *http.Client
	monitor           *NetworkMonitor
}

func NewRemoteClient(baseURL string, timeout time.Duration, correlationHeader string, monitor *NetworkMonitor) *RemoteClient {
	return &RemoteClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		correlationHeader: correlationHeader,
		client:            &http.Client{Timeout: timeout},
		monitor:           monitor,
	}
}

type remoteEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// documentAttachment is the optional binary payload carried by document
// create operations.
type documentAttachment struct {
	FileName    string `json:"fileName"`
	FileContent []byte `json:"fileContent"`
}

// Execute dispatches one operation and returns the canonical remote record,
// if the response carried one. A 409 comes back as *ConflictError with the
// current remote record; any other non-2xx as *TransportError.
func (c *RemoteClient) Execute(ctx context.Context, op *store.SyncOperation) (json.RawMessage, error) {
	req, err := c.buildRequest(ctx, op)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.correlationHeader, op.ID)

	start := time.Now()
	resp, err := c.client.Do(req)
	c.monitor.Record(time.Since(start))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(body) == 0 {
			return nil, nil
		}
		var env remoteEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, nil
		}
		return env.Data, nil

	case resp.StatusCode == http.StatusConflict:
		remote := json.RawMessage(body)
		var env remoteEnvelope
		if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
			remote = env.Data
		}
		return nil, &ConflictError{OperationID: op.ID, Remote: remote}

	default:
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

func (c *RemoteClient) buildRequest(ctx context.Context, op *store.SyncOperation) (*http.Request, error) {
	base := c.baseURL + "/api/" + store.ResourceCollection(op.ResourceType)

	switch op.Type {
	case store.OpCreate:
		if op.ResourceType == "document" {
			var att documentAttachment
			if err := json.Unmarshal(op.Data, &att); err == nil && len(att.FileContent) > 0 {
				return c.buildMultipartRequest(ctx, base, op, &att)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(op.Data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	case store.OpUpdate:
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, base+"/"+op.ResourceID, bytes.NewReader(op.Data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	case store.OpDelete:
		return http.NewRequestWithContext(ctx, http.MethodDelete, base+"/"+op.ResourceID, nil)

	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// buildMultipartRequest sends a document plus its binary attachment as
// multipart fields: file, metadata (JSON string), syncOperation (op id).
func (c *RemoteClient) buildMultipartRequest(ctx context.Context, url string, op *store.SyncOperation, att *documentAttachment) (*http.Request, error) {
	var meta map[string]any
	if err := json.Unmarshal(op.Data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode document payload: %w", err)
	}
	delete(meta, "fileContent")
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fileName := att.FileName
	if fileName == "" {
		fileName = op.ResourceID
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(att.FileContent); err != nil {
		return nil, err
	}
	if err := w.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, err
	}
	if err := w.WriteField("syncOperation", op.ID); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}
