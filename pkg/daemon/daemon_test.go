package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cdmslab/hvctl/pkg/config"
	"github.com/cdmslab/hvctl/pkg/events"
	"github.com/cdmslab/hvctl/pkg/odb"
)

func newTestServer(prefill map[string]string) (*server, *odb.Mock, http.Handler) {
	m := odb.NewMock(prefill)
	s := newServer(m, config.NewFileFromConfig(nil, ""), events.NewHub())
	return s, m, setupRoutes(s)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestReadODB(t *testing.T) {
	_, _, h := newTestServer(map[string]string{"/a/b": "1.5"})

	w := do(h, http.MethodGet, "/odb?path=/a/b", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /odb = %d: %s", w.Code, w.Body.String())
	}
	var got string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got != "1.5" {
		t.Errorf("value = %q, want 1.5", got)
	}

	if w := do(h, http.MethodGet, "/odb", ""); w.Code != http.StatusBadRequest {
		t.Errorf("GET /odb without path = %d, want 400", w.Code)
	}
	if w := do(h, http.MethodGet, "/odb?path=/missing", ""); w.Code != http.StatusBadGateway {
		t.Errorf("GET /odb missing key = %d, want 502", w.Code)
	}
}

func TestWriteODB(t *testing.T) {
	s, m, h := newTestServer(nil)
	sub := s.hub.Subscribe()

	w := do(h, http.MethodPut, "/odb", `{"path": "/x/y[0]", "value": "3.25"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("PUT /odb = %d: %s", w.Code, w.Body.String())
	}
	if got, _ := m.Value("/x/y[0]"); got != "3.25" {
		t.Errorf("stored value = %q, want 3.25", got)
	}
	ev := <-sub
	if p, err := events.DecodeAs[events.ODBWriteEvent](ev); err != nil || ev.Name != events.ODBWrite || p.Path != "/x/y[0]" || p.Value != "3.25" {
		t.Errorf("published event = %s %s, %v", ev.Name, ev.Data, err)
	}

	if w := do(h, http.MethodPut, "/odb", `{"value": "1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /odb without path = %d, want 400", w.Code)
	}
	if w := do(h, http.MethodPut, "/odb", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT /odb bad body = %d, want 400", w.Code)
	}

	m.FailOn("/x/broken", errors.New("boom"))
	if w := do(h, http.MethodPut, "/odb", `{"path": "/x/broken", "value": "1"}`); w.Code != http.StatusBadGateway {
		t.Errorf("PUT /odb failing write = %d, want 502", w.Code)
	}
	if len(sub) != 0 {
		t.Errorf("failed writes must not be published, got %d events", len(sub))
	}
}

func TestRunControl(t *testing.T) {
	_, m, h := newTestServer(nil)

	if w := do(h, http.MethodPost, "/run/start", ""); w.Code != http.StatusCreated {
		t.Fatalf("POST /run/start = %d", w.Code)
	}
	if !m.Running() {
		t.Error("run should be started")
	}
	if w := do(h, http.MethodPost, "/run/stop", ""); w.Code != http.StatusCreated {
		t.Fatalf("POST /run/stop = %d", w.Code)
	}
	if m.Running() {
		t.Error("run should be stopped")
	}
}

func TestGetConfigAndVersion(t *testing.T) {
	_, _, h := newTestServer(nil)

	w := do(h, http.MethodGet, "/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /config = %d", w.Code)
	}
	var raw config.RawFileConfig
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw.Equipment == nil || *raw.Equipment != odb.DefaultEquipment {
		t.Errorf("config equipment = %v", raw.Equipment)
	}

	w = do(h, http.MethodGet, "/version", "")
	var v VersionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Version == "" {
		t.Error("empty version")
	}
}

func TestSetConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hvctl.json")
	m := odb.NewMock(nil)
	s := newServer(m, config.NewFileFromConfig(nil, path), events.NewHub())
	rebuilt := odb.NewMock(map[string]string{"/a": "rebuilt"})
	s.newClient = func(config.Config) odb.Client { return rebuilt }
	h := setupRoutes(s)

	if w := do(h, http.MethodPut, "/config", `{"key": "rampRate", "value": "0.5"}`); w.Code != http.StatusCreated {
		t.Fatalf("PUT /config rampRate = %d: %s", w.Code, w.Body.String())
	}
	if s.client != m {
		t.Error("a ramp rate change must keep the ODB client")
	}
	saved, err := config.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.RampRate() != 0.5 {
		t.Errorf("saved rampRate = %v, want 0.5", saved.RampRate())
	}

	if w := do(h, http.MethodPut, "/config", `{"key": "experiment", "value": "cdms"}`); w.Code != http.StatusCreated {
		t.Fatalf("PUT /config experiment = %d: %s", w.Code, w.Body.String())
	}
	if w := do(h, http.MethodGet, "/odb?path=/a", ""); !strings.Contains(w.Body.String(), "rebuilt") {
		t.Errorf("ODB client not rebuilt after experiment change: %s", w.Body.String())
	}

	for _, body := range []string{`{"key": "rampRate", "value": "-1"}`, `{"key": "limit", "value": "80"}`, `not json`} {
		if w := do(h, http.MethodPut, "/config", body); w.Code != http.StatusBadRequest {
			t.Errorf("PUT /config %s = %d, want 400", body, w.Code)
		}
	}
	if s.conf.RampRate() != 0.5 {
		t.Errorf("rampRate = %v after rejected changes, want 0.5", s.conf.RampRate())
	}
}
