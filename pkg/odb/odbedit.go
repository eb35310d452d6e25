package odb

import (
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// runCommand executes a program and returns its combined output. It is a
// variable so tests can replace it.
var runCommand = func(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// diagnostic reports whether an output line is an odbedit or MIDAS error
// message rather than data. Only the start of the line is matched so keys
// and values that happen to contain "error" are not mistaken for failures.
func diagnostic(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(l, "key ") && strings.HasSuffix(l, "not found"):
		return true
	case strings.HasPrefix(l, "cannot connect"),
		strings.HasPrefix(l, "error:"),
		strings.HasPrefix(l, "[") && strings.Contains(l, ",error]"):
		return true
	}
	return false
}

// Odbedit drives the ODB through the odbedit command line tool. Every
// operation runs a single "odbedit -c <command>".
type Odbedit struct {
	// Binary is the odbedit executable, "odbedit" if empty.
	Binary string
	// Experiment and Host are passed as -e and -h when not empty.
	Experiment string
	Host       string
}

var _ Client = &Odbedit{}

// NewOdbedit returns an odbedit backend.
func NewOdbedit(binary, experiment, host string) *Odbedit {
	return &Odbedit{
		Binary:     binary,
		Experiment: experiment,
		Host:       host,
	}
}

func (o *Odbedit) args(command string) []string {
	var args []string
	if o.Experiment != "" {
		args = append(args, "-e", o.Experiment)
	}
	if o.Host != "" {
		args = append(args, "-h", o.Host)
	}
	return append(args, "-c", command)
}

func (o *Odbedit) exec(command string) (string, error) {
	bin := o.Binary
	if bin == "" {
		bin = "odbedit"
	}
	args := o.args(command)

	logrus.WithFields(logrus.Fields{
		"bin":  bin,
		"args": args,
	}).Trace("Running odbedit")

	out, err := runCommand(bin, args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%w: %s %q: %v: %s", ErrControlSystem, bin, command, err, output)
	}
	for _, line := range strings.Split(output, "\n") {
		if diagnostic(line) {
			return output, fmt.Errorf("%w: %s %q: %s", ErrControlSystem, bin, command, output)
		}
	}

	logrus.WithFields(logrus.Fields{
		"command": command,
		"output":  output,
	}).Trace("odbedit succeed")

	return output, nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Write sets an ODB key.
func (o *Odbedit) Write(p, value string) error {
	v := value
	if strings.ContainsAny(v, " \t") || v == "" {
		v = quote(v)
	}
	_, err := o.exec(fmt.Sprintf("set %s %s", quote(p), v))
	return err
}

// Read returns the value of an ODB key as printed by "ls".
func (o *Odbedit) Read(p string) (string, error) {
	out, err := o.exec("ls " + quote(p))
	if err != nil {
		return "", err
	}
	v, err := parseLsValue(p, out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrControlSystem, err)
	}
	return v, nil
}

// StartRun starts a new acquisition run.
func (o *Odbedit) StartRun() error {
	_, err := o.exec("start now")
	return err
}

// StopRun stops the current acquisition run.
func (o *Odbedit) StopRun() error {
	_, err := o.exec("stop now")
	return err
}

var indexSuffix = regexp.MustCompile(`\[(\d+)\]$`)

// parseLsValue extracts the value from the output of ls on a single key. A
// plain key prints "<name>   <value>"; an array element prints
// "[<index>]   <value>", possibly after a line holding the array name.
func parseLsValue(p, out string) (string, error) {
	name := path.Base(p)
	index := ""
	if m := indexSuffix.FindStringSubmatch(name); m != nil {
		index = m[1]
		name = strings.TrimSuffix(name, m[0])
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if index != "" {
			prefix := "[" + index + "]"
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(line[len(prefix):]), nil
			}
			continue
		}
		if strings.HasPrefix(line, name) {
			if v := strings.TrimSpace(line[len(name):]); v != "" {
				return v, nil
			}
		}
	}

	return "", fmt.Errorf("no value for %s in odbedit output %q", p, out)
}
