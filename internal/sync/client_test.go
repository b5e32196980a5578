package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"practice-sync-client/internal/store"
)

func newTestClient(t *testing.T, handler http.Handler) (*RemoteClient, *NetworkMonitor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	monitor := NewNetworkMonitor(0)
	return NewRemoteClient(srv.URL, 5*time.Second, "X-Sync-Operation-ID", monitor), monitor
}

func TestExecuteSetsCorrelationHeader(t *testing.T) {
	var gotHeader string
	client, monitor := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Sync-Operation-ID")
		w.WriteHeader(http.StatusOK)
	}))

	op := &store.SyncOperation{
		ID:           "op-1",
		Type:         store.OpCreate,
		ResourceType: "task",
		ResourceID:   "1",
		Data:         json.RawMessage(`{}`),
	}
	if _, err := client.Execute(context.Background(), op); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotHeader != "op-1" {
		t.Errorf("correlation header = %q, want op-1", gotHeader)
	}
	if monitor.Average() <= 0 {
		t.Error("latency was not recorded")
	}
}

func TestExecuteUnwrapsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"1","title":"canonical"}}`))
	}))

	op := &store.SyncOperation{ID: "op-1", Type: store.OpCreate, ResourceType: "task", ResourceID: "1", Data: json.RawMessage(`{}`)}
	canonical, err := client.Execute(context.Background(), op)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(canonical, &data); err != nil {
		t.Fatalf("decode canonical: %v", err)
	}
	if data["title"] != "canonical" {
		t.Errorf("title = %v", data["title"])
	}
}

func TestExecuteEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	op := &store.SyncOperation{ID: "op-1", Type: store.OpDelete, ResourceType: "task", ResourceID: "1"}
	canonical, err := client.Execute(context.Background(), op)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if canonical != nil {
		t.Errorf("canonical = %s, want nil", canonical)
	}
}

func TestExecuteConflict(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"enveloped", `{"data":{"title":"remote"}}`, `{"title":"remote"}`},
		{"bare body", `{"title":"remote"}`, `{"title":"remote"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(tt.body))
			}))

			op := &store.SyncOperation{ID: "op-1", Type: store.OpUpdate, ResourceType: "task", ResourceID: "1", Data: json.RawMessage(`{}`)}
			_, err := client.Execute(context.Background(), op)

			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("error = %v, want *ConflictError", err)
			}
			if conflict.OperationID != "op-1" {
				t.Errorf("OperationID = %q", conflict.OperationID)
			}
			if string(conflict.Remote) != tt.want {
				t.Errorf("Remote = %s, want %s", conflict.Remote, tt.want)
			}
		})
	}
}

func TestExecuteTransportError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))

	op := &store.SyncOperation{ID: "op-1", Type: store.OpCreate, ResourceType: "task", ResourceID: "1", Data: json.RawMessage(`{}`)}
	_, err := client.Execute(context.Background(), op)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if terr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", terr.StatusCode)
	}
}

func TestExecuteDocumentMultipart(t *testing.T) {
	fileContent := []byte("PDF bytes")

	var gotFile []byte
	var gotMetadata, gotSyncOp string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFile, _ = io.ReadAll(f)
		gotMetadata = r.FormValue("metadata")
		gotSyncOp = r.FormValue("syncOperation")
		w.WriteHeader(http.StatusOK)
	}))

	payload, err := json.Marshal(map[string]any{
		"fileName":    "scan.pdf",
		"fileContent": fileContent,
		"patientId":   "p-1",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	op := &store.SyncOperation{
		ID:           "op-1",
		Type:         store.OpCreate,
		ResourceType: "document",
		ResourceID:   "doc-1",
		Data:         payload,
	}
	if _, err := client.Execute(context.Background(), op); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if string(gotFile) != string(fileContent) {
		t.Errorf("file part = %q, want the attachment bytes", gotFile)
	}
	if gotSyncOp != "op-1" {
		t.Errorf("syncOperation = %q, want op-1", gotSyncOp)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(gotMetadata), &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta["patientId"] != "p-1" || meta["fileName"] != "scan.pdf" {
		t.Errorf("metadata = %v", meta)
	}
	if _, ok := meta["fileContent"]; ok {
		t.Error("binary content leaked into the metadata part")
	}
}

func TestExecuteDocumentWithoutAttachmentIsJSON(t *testing.T) {
	var contentType string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))

	op := &store.SyncOperation{
		ID:           "op-1",
		Type:         store.OpCreate,
		ResourceType: "document",
		ResourceID:   "doc-1",
		Data:         json.RawMessage(`{"fileName":"note.txt"}`),
	}
	if _, err := client.Execute(context.Background(), op); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
}
