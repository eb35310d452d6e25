// Package daemon serves ODB access over a unix socket so that several hvctl
// invocations share one serialized connection to odbedit.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/config"
	"github.com/cdmslab/hvctl/pkg/events"
	"github.com/cdmslab/hvctl/pkg/odb"
)

// server owns the ODB client. All ODB commands go through mu, so only one
// odbedit process runs at a time.
type server struct {
	mu     sync.Mutex
	client odb.Client
	conf   config.Config
	hub    *events.Hub

	// newClient rebuilds the ODB client after a config change. Nil keeps
	// the current client.
	newClient func(config.Config) odb.Client
}

func newServer(client odb.Client, conf config.Config, hub *events.Hub) *server {
	return &server{client: client, conf: conf, hub: hub}
}

func (s *server) setClient(client odb.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

func setupRoutes(s *server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", s.getConfig)
	router.PUT("/config", s.setConfig)
	router.GET("/odb", s.readODB)
	router.PUT("/odb", s.writeODB)
	router.POST("/run/start", s.startRun)
	router.POST("/run/stop", s.stopRun)
	router.GET("/events", s.streamEvents)
	router.GET("/version", getVersion)

	return router
}

// NewHandler returns the daemon's HTTP handler serving client and conf.
// Changes made through it are published to hub.
func NewHandler(client odb.Client, conf config.Config, hub *events.Hub) http.Handler {
	return setupRoutes(newServer(client, conf, hub))
}

func odbeditFromConfig(conf config.Config) odb.Client {
	return odb.NewOdbedit(conf.OdbeditPath(), conf.Experiment(), conf.Host())
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	hub := events.NewHub()
	s := newServer(odbeditFromConfig(conf), conf, hub)
	s.newClient = odbeditFromConfig
	router := setupRoutes(s)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			s.setClient(odbeditFromConfig(conf))
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	if broker := conf.MQTTBroker(); broker != "" {
		disconnect, err := startMQTTBridge(hub, broker, conf.MQTTTopic())
		if err != nil {
			// Event forwarding is optional, ODB access still works.
			logrus.Errorf("MQTT forwarding disabled: %v", err)
		} else {
			defer disconnect()
		}
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		if err := os.Remove(unixSocketPath); err != nil {
			logrus.Fatal(err)
		}
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Event streams only end when their subscription is closed.
	hub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
