// httpapi/httpapi_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mmp/tapebak/changer"
	"github.com/mmp/tapebak/device/filedev"
	"github.com/mmp/tapebak/job"
	"github.com/mmp/tapebak/writer"
)

func newTestJob(t *testing.T) *job.Job {
	t.Helper()
	root := t.TempDir()
	dev, err := filedev.Open(filepath.Join(t.TempDir(), "tape.bin"), 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	return job.New(root, dev, writer.NoSwap{}, nil)
}

func TestHandleLibraries(t *testing.T) {
	s := NewServer([]Library{{Name: "lib0", DeviceKind: "filedev"}}, nil, nil)
	req := httptest.NewRequest("GET", "/api/libraries", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	var resp librariesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %+v", err)
	}
	if len(resp.Libraries) != 1 || resp.Libraries[0].Name != "lib0" {
		t.Errorf("got %+v", resp.Libraries)
	}
	if resp.Drives == nil || resp.Loaders == nil || resp.Element == nil {
		t.Errorf("expected drives/loaders/element to be present (possibly empty), got %+v", resp)
	}
}

func TestHandleLibrariesIncludesChangerElements(t *testing.T) {
	c := changer.New(changer.Config{NumSlots: 2, NumPortals: 1, NumDrives: 1})
	c.LoadSlot(0, "VOL001")
	s := NewServer([]Library{{Name: "lib0"}}, c, nil)

	req := httptest.NewRequest("GET", "/api/libraries", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp librariesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %+v", err)
	}
	if len(resp.Drives) != 1 {
		t.Fatalf("got %d drives, want 1", len(resp.Drives))
	}
	if len(resp.Loaders) != 1 {
		t.Fatalf("got %d loaders, want 1", len(resp.Loaders))
	}
	// 2 slots + 1 portal + 1 drive + 1 transport.
	if len(resp.Element) != 5 {
		t.Fatalf("got %d elements, want 5", len(resp.Element))
	}
	var sawLoadedSlot bool
	for _, e := range resp.Element {
		if e.Kind == "storage" && e.Address == 0 {
			if e.IsEmpty {
				t.Errorf("slot 0 should be reported full")
			}
			if e.Label != "VOL001" {
				t.Errorf("got label %q, want VOL001", e.Label)
			}
			sawLoadedSlot = true
		}
	}
	if !sawLoadedSlot {
		t.Errorf("expected to find loaded slot 0 in element list")
	}
}

func TestHandleLibrariesETagMatch(t *testing.T) {
	s := NewServer([]Library{{Name: "lib0"}}, nil, nil)
	w1 := httptest.NewRecorder()
	s.Router().ServeHTTP(w1, httptest.NewRequest("GET", "/api/libraries", nil))
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag header")
	}

	req2 := httptest.NewRequest("GET", "/api/libraries", nil)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	s.Router().ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Errorf("got status %d, want 304", w2.Code)
	}
}

func TestHandleGetJobNotFound(t *testing.T) {
	s := NewServer(nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/jobs/00000000-0000-0000-0000-000000000000", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", w.Code)
	}
}

func TestHandleListAndCancelJob(t *testing.T) {
	s := NewServer(nil, nil, nil)
	j := newTestJob(t)
	s.Register(j)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/jobs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}

	j.Start(context.Background())
	cancelReq := httptest.NewRequest("POST", "/api/jobs/"+j.UUID.String()+"/cancel", nil)
	cw := httptest.NewRecorder()
	s.Router().ServeHTTP(cw, cancelReq)
	if cw.Code != http.StatusAccepted {
		t.Errorf("got status %d, want 202", cw.Code)
	}
	j.Wait()
}
