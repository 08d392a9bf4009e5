// Package autostart installs and removes the per-user login entry that starts the bridge.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const label = "com.spenremote.bridge"

const launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const systemdUnit = `[Unit]
Description=S Pen remote bridge
After=network-online.target

[Service]
ExecStart={{.Command}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// ErrUnsupported is returned on platforms without a login entry format.
var ErrUnsupported = errors.New("autostart: unsupported platform")

// Entry describes the login entry for one executable.
type Entry struct {
	// GOOS selects the entry format. Defaults to runtime.GOOS.
	GOOS string
	// Home is the user's home directory. Defaults to os.UserHomeDir.
	Home string
	// Executable is the binary to start. Defaults to os.Executable.
	Executable string
	// Args are passed to the executable.
	Args []string
}

func (e Entry) resolve() (Entry, error) {
	if e.GOOS == "" {
		e.GOOS = runtime.GOOS
	}
	if e.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return e, err
		}
		e.Home = home
	}
	if e.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return e, fmt.Errorf("failed to get executable path: %w", err)
		}
		e.Executable = exe
	}
	return e, nil
}

// Path returns where the login entry lives for e.
func (e Entry) Path() (string, error) {
	e, err := e.resolve()
	if err != nil {
		return "", err
	}
	switch e.GOOS {
	case "darwin":
		return filepath.Join(e.Home, "Library", "LaunchAgents", label+".plist"), nil
	case "linux":
		return filepath.Join(e.Home, ".config", "systemd", "user", "spenremote.service"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, e.GOOS)
	}
}

// Enable writes the login entry, replacing any previous one.
func Enable(e Entry) error {
	e, err := e.resolve()
	if err != nil {
		return err
	}
	path, err := e.Path()
	if err != nil {
		return err
	}

	var tmpl *template.Template
	var data any
	switch e.GOOS {
	case "darwin":
		tmpl = template.Must(template.New("plist").Parse(launchAgentPlist))
		data = struct {
			Label string
			Args  []string
		}{label, append([]string{e.Executable}, e.Args...)}
	default:
		tmpl = template.Must(template.New("unit").Parse(systemdUnit))
		data = struct{ Command string }{commandLine(e.Executable, e.Args)}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Disable removes the login entry. A missing entry is not an error.
func Disable(e Entry) error {
	path, err := e.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsEnabled reports whether the login entry exists.
func IsEnabled(e Entry) bool {
	path, err := e.Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// commandLine quotes arguments for a systemd ExecStart line.
func commandLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{exe}, args...) {
		if strings.ContainsAny(a, " \t\"\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
