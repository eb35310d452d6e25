package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	pkgerrors "github.com/pkg/errors"

	"github.com/cdmslab/hvctl/pkg/config"
	"github.com/cdmslab/hvctl/pkg/daemon"
	"github.com/cdmslab/hvctl/pkg/odb"
)

var _ odb.Client = &Client{}

// odbError keeps daemon-side ODB failures distinguishable as
// odb.ErrControlSystem.
func odbError(err error, format string, args ...any) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadGateway {
		return fmt.Errorf("%w: %s", odb.ErrControlSystem, se.Error())
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// Write sets an ODB value through the daemon.
func (c *Client) Write(path, value string) error {
	payload, err := json.Marshal(daemon.WriteRequest{Path: path, Value: value})
	if err != nil {
		return err
	}
	if _, err := c.Put("/odb", string(payload)); err != nil {
		return odbError(err, "failed to write %s", path)
	}
	return nil
}

// Read returns an ODB value through the daemon.
func (c *Client) Read(path string) (string, error) {
	ret, err := c.Get("/odb?path=" + url.QueryEscape(path))
	if err != nil {
		return "", odbError(err, "failed to read %s", path)
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal value of %s", path)
	}
	return v, nil
}

func (c *Client) StartRun() error {
	if _, err := c.Post("/run/start", ""); err != nil {
		return odbError(err, "failed to start run")
	}
	return nil
}

func (c *Client) StopRun() error {
	if _, err := c.Post("/run/stop", ""); err != nil {
		return odbError(err, "failed to stop run")
	}
	return nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

// SetConfig changes one config key on the daemon, which saves it. It returns
// the daemon's confirmation.
func (c *Client) SetConfig(key, value string) (string, error) {
	payload, err := json.Marshal(daemon.ConfigRequest{Key: key, Value: value})
	if err != nil {
		return "", err
	}
	ret, err := c.Put("/config", string(payload))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to set %s", key)
	}
	var msg string
	if err := json.Unmarshal([]byte(ret), &msg); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal response")
	}
	return msg, nil
}

func (c *Client) GetVersion() (daemon.VersionResponse, error) {
	var v daemon.VersionResponse
	ret, err := c.Get("/version")
	if err != nil {
		return v, pkgerrors.Wrapf(err, "failed to get daemon version")
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal daemon version")
	}
	return v, nil
}
