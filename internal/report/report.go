// Package report delivers the outcome of a provisioning run to optional sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/template"

	"zac/internal/config"
	"zac/internal/domain"
	"zac/internal/templatefmt"
)

// DefaultTemplate renders a short plain-text run summary.
const DefaultTemplate = `zac {{ .Command }} {{ if .Succeeded }}succeeded{{ else }}failed (exit {{ .ExitCode }}){{ end }} in {{ fmtDuration .Duration }}
run: {{ .RunID }}
{{- if .APIVersion }}
api: {{ .APIVersion }}
{{- end }}
{{- with .Action }}
media type: {{ .MediaTypeID }} (created: {{ yesno .MediaTypeCreated }})
action: {{ .ActionID }}{{ if .ActionSkipped }} (existing){{ end }}
{{- end }}
{{- if .SeededHostIDs }}
seeded hosts: {{ join .SeededHostIDs ", " }}
{{- end }}
{{- if .SeedError }}
seed error: {{ .SeedError }}
{{- end }}
{{- with .Probe }}
probe on {{ .Host }}: fired={{ yesno .Fired }} pushed={{ .Pushed }} waited={{ fmtDuration .Waited }}
{{- end }}
{{- if .Error }}
error: {{ .Error }}
{{- end }}`

// Sink delivers one rendered report.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, report domain.RunReport, text string) error
}

// Dispatcher renders a report once and hands it to every enabled sink.
type Dispatcher struct {
	sinks    []Sink
	template *template.Template
	logger   *slog.Logger
}

// NewDispatcher builds sinks enabled in the report section.
// Params: report config and logger.
// Returns: dispatcher (possibly without sinks) or template parse error.
func NewDispatcher(cfg config.ReportConfig, logger *slog.Logger) (*Dispatcher, error) {
	var sinks []Sink
	if cfg.HTTP.Enabled {
		sinks = append(sinks, NewHTTPSink(cfg.HTTP))
	}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, NewTelegramSink(cfg.Telegram))
	}
	if cfg.NATS.Enabled {
		sinks = append(sinks, NewNATSSink(cfg.NATS))
	}
	return newDispatcher(cfg.Template, logger, sinks...)
}

func newDispatcher(body string, logger *slog.Logger, sinks ...Sink) (*Dispatcher, error) {
	if strings.TrimSpace(body) == "" {
		body = DefaultTemplate
	}
	tmpl, err := templatefmt.ParseReportTemplate("report", body)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{sinks: sinks, template: tmpl, logger: logger}, nil
}

// Sinks returns names of configured sinks in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Render formats the report with the configured template.
func (d *Dispatcher) Render(report domain.RunReport) (string, error) {
	return templatefmt.Render(d.template, report)
}

// Deliver sends the report to every sink once. A failing sink does not stop the others.
// Params: context and finished report.
// Returns: joined sink errors, nil when all succeeded or no sink is enabled.
func (d *Dispatcher) Deliver(ctx context.Context, report domain.RunReport) error {
	if len(d.sinks) == 0 {
		return nil
	}
	text, err := d.Render(report)
	if err != nil {
		return err
	}
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, report, text); err != nil {
			d.logger.Warn("report delivery failed", "sink", sink.Name(), "run_id", report.RunID.String(), "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		d.logger.Info("report delivered", "sink", sink.Name(), "run_id", report.RunID.String())
	}
	return errors.Join(errs...)
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: sink label and HTTP response.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}
