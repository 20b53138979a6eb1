// httpapi/httpapi.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package httpapi implements the daemon's HTTP control surface: a
// read-only view of configured device libraries, job listing and
// status, job cancellation, and ETag-cached static asset serving for
// a browser UI. Routing follows the teacher's use of gorilla/mux
// subrouters and JSON-encoded handlers.
package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mmp/tapebak/changer"
	"github.com/mmp/tapebak/job"
)

// Library describes one configured device/changer pairing, for the
// read-only /api/libraries listing.
type Library struct {
	Name       string `json:"name"`
	DeviceKind string `json:"deviceKind"`
	HasChanger bool   `json:"hasChanger"`
}

// Drive describes one tape drive a library exposes.
type Drive struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	File string    `json:"file"`
}

// Loader describes one import/export portal (mailslot) a library
// exposes.
type Loader struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	File string    `json:"file"`
}

// Element describes one changer slot/drive/portal/transport position.
type Element struct {
	ID      uuid.UUID `json:"id"`
	Address int       `json:"address"`
	IsEmpty bool      `json:"isEmpty"`
	Kind    string    `json:"kind"`
	Label   string    `json:"label"`
}

// librariesResponse is the body of GET /api/libraries.
type librariesResponse struct {
	Libraries []Library `json:"libraries"`
	Drives    []Drive   `json:"drives"`
	Loaders   []Loader  `json:"loaders"`
	Element   []Element `json:"element"`
}

// elementIDNamespace seeds the deterministic UUIDs assigned to changer
// elements, so the same slot/drive/portal address reports the same id
// across requests without the server having to persist an id table.
var elementIDNamespace = uuid.MustParse("6f2b9b2e-7e3b-4f5a-9c8d-2e6a1b9c4d3f")

func elementID(kind changer.ElementKind, address int) uuid.UUID {
	return uuid.NewSHA1(elementIDNamespace, []byte(fmt.Sprintf("%d:%d", kind, address)))
}

func elementKindName(kind changer.ElementKind) string {
	switch kind {
	case changer.Drive:
		return "drive"
	case changer.Slot:
		return "storage"
	case changer.Portal:
		return "portal"
	case changer.Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// Server is the daemon's HTTP control surface.
type Server struct {
	Libraries []Library
	Changer   *changer.Changer // nil if no changer is configured

	assets fileProvider

	mu   sync.RWMutex
	jobs map[uuid.UUID]*job.Job
}

// fileProvider serves static asset bytes by name, abstracted so tests
// don't need a real webui/ directory on disk.
type fileProvider interface {
	Asset(name string) ([]byte, string, bool) // data, content-type, ok
}

// NewServer returns a Server with no jobs registered yet. ch may be nil
// if no changer is configured, in which case drives/loaders/element are
// reported empty.
func NewServer(libraries []Library, ch *changer.Changer, assets fileProvider) *Server {
	return &Server{
		Libraries: libraries,
		Changer:   ch,
		assets:    assets,
		jobs:      make(map[uuid.UUID]*job.Job),
	}
}

// Register adds j to the set of jobs the API exposes.
func (s *Server) Register(j *job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.UUID] = j
}

// Router builds the mux.Router serving every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/libraries", s.handleLibraries).Methods("GET")
	api.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	api.HandleFunc("/jobs/{uuid}", s.handleGetJob).Methods("GET")
	api.HandleFunc("/jobs/{uuid}/cancel", s.handleCancelJob).Methods("POST")

	if s.assets != nil {
		r.PathPrefix("/").HandlerFunc(s.handleAsset)
	}

	return r
}

func writeJSONWithETag(w http.ResponseWriter, r *http.Request, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	etag := computeETag(body)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

func (s *Server) handleLibraries(w http.ResponseWriter, r *http.Request) {
	resp := librariesResponse{
		Libraries: s.Libraries,
		Drives:    []Drive{},
		Loaders:   []Loader{},
		Element:   []Element{},
	}

	if s.Changer != nil {
		for _, e := range s.Changer.GetElements(changer.Drive) {
			resp.Drives = append(resp.Drives, Drive{
				ID:   elementID(changer.Drive, e.Address),
				Name: fmt.Sprintf("drive%d", e.Address),
			})
		}
		for _, e := range s.Changer.GetElements(changer.Portal) {
			resp.Loaders = append(resp.Loaders, Loader{
				ID:   elementID(changer.Portal, e.Address),
				Name: fmt.Sprintf("loader%d", e.Address),
			})
		}
		for _, kind := range []changer.ElementKind{changer.Drive, changer.Slot, changer.Portal, changer.Transport} {
			for _, e := range s.Changer.GetElements(kind) {
				resp.Element = append(resp.Element, Element{
					ID:      elementID(kind, e.Address),
					Address: e.Address,
					IsEmpty: e.Flags&changer.Full == 0,
					Kind:    elementKindName(kind),
					Label:   e.VolumeTag,
				})
			}
		}
	}

	writeJSONWithETag(w, r, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	statuses := make([]job.Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		statuses = append(statuses, j.Status())
	}
	s.mu.RUnlock()
	writeJSONWithETag(w, r, statuses)
}

func (s *Server) lookupJob(r *http.Request) (*job.Job, bool) {
	id, err := uuid.Parse(mux.Vars(r)["uuid"])
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(r)
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeJSONWithETag(w, r, j.Status())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(r)
	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	j.Cancel()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "/" {
		name = "/index.html"
	}
	data, contentType, ok := s.assets.Asset(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	etag := computeETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
