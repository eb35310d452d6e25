// Package daemon installs the hvctl daemon as a systemd service.
package daemon

import "strings"

const ServiceName = "hvctl.service"

const unitTemplate = `[Unit]
Description=hvctl daemon, serializes ODB access for hvctl
After=network.target

[Service]
Type=simple
EnvironmentFile=-/etc/default/hvctl
ExecStart=/path/to/hvctl daemon --config /path/to/config --daemon-socket /path/to/socket
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// RenderUnit returns the systemd unit running exePath as the daemon.
func RenderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/hvctl", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}
