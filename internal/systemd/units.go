// Package systemd renders units that run cdabench on a schedule.
package systemd

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Name is the base name of the generated units.
const Name = "cdabench"

// Options fill the unit templates.
type Options struct {
	Binary   string // absolute path of the cdabench binary
	Config   string // absolute path of the config file
	Schedule string // systemd OnCalendar expression, e.g. "hourly"
	User     string // optional service user
}

var serviceTmpl = template.Must(template.New("service").Parse(`[Unit]
Description=cdabench data access benchmark
After=network-online.target
Wants=network-online.target

[Service]
Type=oneshot
{{- if .User}}
User={{.User}}
{{- end}}
ExecStart={{.Binary}} run --config {{.Config}} --log-format json
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=full
`))

var timerTmpl = template.Must(template.New("timer").Parse(`[Unit]
Description=Run cdabench {{.Schedule}}

[Timer]
OnCalendar={{.Schedule}}
Persistent=true
RandomizedDelaySec=60

[Install]
WantedBy=timers.target
`))

func (o Options) validate() error {
	if !strings.HasPrefix(o.Binary, "/") {
		return fmt.Errorf("systemd: binary path must be absolute, got %q", o.Binary)
	}
	if !strings.HasPrefix(o.Config, "/") {
		return fmt.Errorf("systemd: config path must be absolute, got %q", o.Config)
	}
	if strings.TrimSpace(o.Schedule) == "" || strings.ContainsAny(o.Schedule, "\n\r") {
		return fmt.Errorf("systemd: invalid schedule %q", o.Schedule)
	}
	if strings.ContainsAny(o.Binary+o.Config+o.User, " \n\r") {
		return fmt.Errorf("systemd: paths and user must not contain whitespace")
	}
	return nil
}

// Units returns the service and timer unit contents keyed by file name.
func Units(o Options) (map[string]string, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	units := map[string]string{}
	for name, tmpl := range map[string]*template.Template{
		Name + ".service": serviceTmpl,
		Name + ".timer":   timerTmpl,
	} {
		var b bytes.Buffer
		if err := tmpl.Execute(&b, o); err != nil {
			return nil, fmt.Errorf("systemd: render %s: %w", name, err)
		}
		units[name] = b.String()
	}
	return units, nil
}
