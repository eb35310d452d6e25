package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/config"
	"github.com/cdmslab/hvctl/pkg/events"
	"github.com/cdmslab/hvctl/pkg/version"
)

// WriteRequest is the body of PUT /odb.
type WriteRequest struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// ConfigRequest is the body of PUT /config. Key is one of config.Keys.
type ConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) setConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.BindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := config.Set(s.conf, req.Key, req.Value); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if config.AffectsODB(req.Key) && s.newClient != nil {
		s.client = s.newClient(s.conf)
	}

	logrus.WithFields(logrus.Fields{"key": req.Key, "value": req.Value}).Info("config changed")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set %s to %q", req.Key, req.Value))
}

func (s *server) readODB(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		abort(c, http.StatusBadRequest, errors.New("missing path query parameter"))
		return
	}

	s.mu.Lock()
	v, err := s.client.Read(path)
	s.mu.Unlock()
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	c.IndentedJSON(http.StatusOK, v)
}

func (s *server) writeODB(c *gin.Context) {
	var req WriteRequest
	if err := c.BindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" {
		abort(c, http.StatusBadRequest, errors.New("path must not be empty"))
		return
	}

	s.mu.Lock()
	err := s.client.Write(req.Path, req.Value)
	s.mu.Unlock()
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	logrus.WithFields(logrus.Fields{"path": req.Path, "value": req.Value}).Info("ODB value written")
	s.hub.Publish(events.ODBWrite, events.ODBWriteEvent{Path: req.Path, Value: req.Value, Ts: time.Now().Unix()})
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *server) startRun(c *gin.Context) {
	s.mu.Lock()
	err := s.client.StartRun()
	s.mu.Unlock()
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	logrus.Info("run started")
	s.hub.Publish(events.RunControl, events.RunControlEvent{Action: "start", Ts: time.Now().Unix()})
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *server) stopRun(c *gin.Context) {
	s.mu.Lock()
	err := s.client.StopRun()
	s.mu.Unlock()
	if err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	logrus.Info("run stopped")
	s.hub.Publish(events.RunControl, events.RunControlEvent{Action: "stop", Ts: time.Now().Unix()})
	c.IndentedJSON(http.StatusCreated, "ok")
}

// streamEvents sends every published event as server-sent events until the
// client goes away or the hub is closed.
func (s *server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.SSEvent(events.DaemonHello, events.HelloEvent{Version: version.Version, Ts: time.Now().Unix()})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, VersionResponse{
		Version:   version.Version,
		GitCommit: version.GitCommit,
	})
}
