package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/cdmslab/hvctl/pkg/config"
	"github.com/cdmslab/hvctl/pkg/daemon"
	"github.com/cdmslab/hvctl/pkg/events"
	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/version"
)

// socketPath returns a socket path in a fresh directory.
func socketPath(t *testing.T) string {
	t.Helper()

	// Unix socket paths are length-limited, t.TempDir() can be too long.
	dir, err := os.MkdirTemp("", "hvctl")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return filepath.Join(dir, "d.sock")
}

// serveAt starts a daemon handler backed by m on sock.
func serveAt(t *testing.T, sock string, m *odb.Mock) *http.Server {
	t.Helper()

	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	conf := config.NewFileFromConfig(nil, filepath.Join(filepath.Dir(sock), "hvctl.json"))
	srv := &http.Server{Handler: daemon.NewHandler(m, conf, events.NewHub())}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return srv
}

// serve starts a daemon handler backed by m on a fresh unix socket.
func serve(t *testing.T, m *odb.Mock) *Client {
	t.Helper()

	sock := socketPath(t)
	serveAt(t, sock, m)
	return NewClient(sock)
}

func TestClient_ReadWrite(t *testing.T) {
	m := odb.NewMock(map[string]string{"/Equipment/Tower01/Settings/DCRC1/Charge/Bias (V)[0]": "0.5"})
	c := serve(t, m)

	path := "/Equipment/Tower01/Settings/DCRC1/Charge/Bias (V)[0]"
	got, err := c.Read(path)
	if err != nil {
		t.Fatalf("Read() unexpected error: %v", err)
	}
	if got != "0.5" {
		t.Errorf("Read() = %q, want 0.5", got)
	}

	if err := c.Write(path, "1.25"); err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}
	if v, _ := m.Value(path); v != "1.25" {
		t.Errorf("daemon-side value = %q, want 1.25", v)
	}
}

func TestClient_ControlSystemError(t *testing.T) {
	m := odb.NewMock(nil)
	m.FailOn("/bad", errors.New("odbedit exploded"))
	m.FailOn("start", errors.New("no run control"))
	c := serve(t, m)

	if err := c.Write("/bad", "1"); !errors.Is(err, odb.ErrControlSystem) {
		t.Errorf("Write() error = %v, want ErrControlSystem", err)
	}
	if _, err := c.Read("/missing"); !errors.Is(err, odb.ErrControlSystem) {
		t.Errorf("Read() error = %v, want ErrControlSystem", err)
	}
	if err := c.StartRun(); !errors.Is(err, odb.ErrControlSystem) {
		t.Errorf("StartRun() error = %v, want ErrControlSystem", err)
	}
}

func TestClient_RunControl(t *testing.T) {
	m := odb.NewMock(nil)
	c := serve(t, m)

	if err := c.StartRun(); err != nil {
		t.Fatal(err)
	}
	if !m.Running() {
		t.Error("run should be started")
	}
	if err := c.StopRun(); err != nil {
		t.Fatal(err)
	}
	if m.Running() {
		t.Error("run should be stopped")
	}
}

func TestClient_ConfigVersionNotFound(t *testing.T) {
	c := serve(t, odb.NewMock(nil))

	conf, err := c.GetConfig()
	if err != nil {
		t.Fatal(err)
	}
	if conf.Equipment == nil || *conf.Equipment != odb.DefaultEquipment {
		t.Errorf("GetConfig() equipment = %v", conf.Equipment)
	}

	v, err := c.GetVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != version.Version {
		t.Errorf("GetVersion() = %q, want %q", v.Version, version.Version)
	}

	if _, err := c.Get("/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(/nope) error = %v, want ErrNotFound", err)
	}
}

func TestClient_SetConfig(t *testing.T) {
	c := serve(t, odb.NewMock(nil))

	if _, err := c.SetConfig("rampRate", "0.5"); err != nil {
		t.Fatalf("SetConfig() unexpected error: %v", err)
	}
	conf, err := c.GetConfig()
	if err != nil {
		t.Fatal(err)
	}
	if conf.RampRate == nil || *conf.RampRate != 0.5 {
		t.Errorf("rampRate after SetConfig() = %v, want 0.5", conf.RampRate)
	}

	_, err = c.SetConfig("rampRate", "0")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("SetConfig(rampRate, 0) error = %v, want a 400 status error", err)
	}
}

func TestClient_DaemonNotRunning(t *testing.T) {
	c := NewClient(socketPath(t))
	if _, err := c.Read("/x"); !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("Read() error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	m := odb.NewMock(nil)
	c := serve(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("SubscribeEvents() unexpected error: %v", err)
	}

	// The hello event guarantees the subscription is registered.
	hello := <-ch
	if hello.Name != events.DaemonHello {
		t.Fatalf("first event = %q, want %q", hello.Name, events.DaemonHello)
	}
	if p, err := events.DecodeAs[events.HelloEvent](hello); err != nil || p.Version != version.Version {
		t.Errorf("hello payload = %+v, %v", p, err)
	}

	if err := c.Write("/Logger/Write data", "y"); err != nil {
		t.Fatal(err)
	}
	if err := c.StartRun(); err != nil {
		t.Fatal(err)
	}

	ev := <-ch
	w, err := events.DecodeAs[events.ODBWriteEvent](ev)
	if err != nil || ev.Name != events.ODBWrite || w.Path != "/Logger/Write data" || w.Value != "y" {
		t.Errorf("write event = %s %s, %v", ev.Name, ev.Data, err)
	}
	ev = <-ch
	r, err := events.DecodeAs[events.RunControlEvent](ev)
	if err != nil || ev.Name != events.RunControl || r.Action != "start" {
		t.Errorf("run event = %s %s, %v", ev.Name, ev.Data, err)
	}

	cancel()
	for range ch {
	}
}

