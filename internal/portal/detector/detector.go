// Package detector classifies captive-portal detection probes and produces
// the OS-specific response each platform expects. Authorized devices get the
// platform's "no portal" answer; everything else is redirected to the portal
// entry point. The probe path never returns a server error: a broken probe
// response wedges the OS network-detection UX.
package detector

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"guestgate/internal/audit"
	"guestgate/internal/identity"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/platform/tracer"
)

// ProbeOS is the detected platform behind a portal probe.
type ProbeOS string

const (
	OSAndroid ProbeOS = "android"
	OSIOS     ProbeOS = "ios"
	OSApple   ProbeOS = "apple"
	OSWindows ProbeOS = "windows"
	OSGeneric ProbeOS = "generic"

	// OSNone marks a request that is not a portal probe at all.
	OSNone ProbeOS = ""
)

// probePaths maps well-known detection endpoints to their platform.
var probePaths = map[string]ProbeOS{
	"/generate_204":              OSAndroid,
	"/gen_204":                   OSAndroid,
	"/mobile/status.php":         OSAndroid,
	"/hotspot-detect.html":       OSIOS,
	"/library/test/success.html": OSApple,
	"/success.html":              OSApple,
	"/connecttest.txt":           OSWindows,
	"/ncsi.txt":                  OSWindows,
	"/redirect":                  OSWindows,
	"/success.txt":               OSGeneric,
	"/canonical.html":            OSGeneric,
	"/check_network_status.txt":  OSGeneric,
}

// probeAgents maps user-agent substrings to platforms for probes arriving on
// unrecognized paths.
var probeAgents = []struct {
	marker string
	os     ProbeOS
}{
	{"captivenetworksupport", OSIOS},
	{"microsoft ncsi", OSWindows},
	{"dalvik", OSAndroid},
}

// probePathHints classify any path mentioning portal detection as a generic
// probe.
var probePathHints = []string{"hotspot", "captive", "connectivity"}

// AccessChecker is the authorization decision the detector dispatches to.
type AccessChecker interface {
	CheckAccess(ctx context.Context, identifier string) (bool, string)
}

// Detector handles captive-portal probe traffic.
type Detector struct {
	resolver  *identity.Resolver
	decider   AccessChecker
	portalURL string
	auditor   audit.Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
}

// Option configures the Detector.
type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(d *Detector) { d.tracer = t }
}

func New(resolver *identity.Resolver, decider AccessChecker, portalURL string, auditor audit.Sink, opts ...Option) *Detector {
	d := &Detector{
		resolver:  resolver,
		decider:   decider,
		portalURL: portalURL,
		auditor:   auditor,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = tracer.NewNoop()
	}
	return d
}

// Classify maps a request path and user-agent to a probe platform. OSNone
// means the request is not a detection probe and must be passed through
// untouched.
func Classify(path, userAgent string) ProbeOS {
	if os, ok := probePaths[strings.ToLower(path)]; ok {
		return os
	}
	lowered := strings.ToLower(userAgent)
	for _, agent := range probeAgents {
		if strings.Contains(lowered, agent.marker) {
			return agent.os
		}
	}
	loweredPath := strings.ToLower(path)
	for _, hint := range probePathHints {
		if strings.Contains(loweredPath, hint) {
			return OSGeneric
		}
	}
	return OSNone
}

// Handle serves the request when it is a portal probe and reports whether it
// did. Non-probe requests are left untouched for the caller's fallback.
func (d *Detector) Handle(w http.ResponseWriter, r *http.Request) bool {
	os := Classify(r.URL.Path, r.UserAgent())
	if os == OSNone {
		return false
	}

	ctx, span := d.tracer.Start(r.Context(), tracer.SpanProbeClassify,
		tracer.String(tracer.AttrProbeOS, string(os)),
	)
	if d.metrics != nil {
		d.metrics.ProbesClassified.WithLabelValues(string(os)).Inc()
	}

	identifier, err := d.resolver.ResolveWithFallback(r)
	if err != nil {
		// no identity at all: show the portal
		d.audit(ctx, r, os, "", false)
		span.End(err)
		d.redirect(w, r, os, "")
		return true
	}
	span.SetAttributes(tracer.String(tracer.AttrDeviceHash, tracer.HashIdentifier(identifier)))

	authorized, reason := d.decider.CheckAccess(ctx, identifier)
	span.SetAttributes(
		tracer.Bool(tracer.AttrAuthorized, authorized),
		tracer.String(tracer.AttrDenyReason, reason),
	)
	d.audit(ctx, r, os, identifier, authorized)
	span.End(nil)

	if !authorized {
		d.redirect(w, r, os, identifier)
		return true
	}
	d.respondAuthorized(w, os)
	return true
}

// respondAuthorized writes the platform's expected "internet is reachable"
// answer.
func (d *Detector) respondAuthorized(w http.ResponseWriter, os ProbeOS) {
	switch os {
	case OSAndroid:
		w.WriteHeader(http.StatusNoContent)
	case OSIOS, OSApple:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<HTML><HEAD><TITLE>Success</TITLE></HEAD><BODY>Success</BODY></HTML>"))
	case OSWindows:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Microsoft NCSI"))
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// redirect sends the device to the portal entry point carrying the resolved
// identifier and the probe source.
func (d *Detector) redirect(w http.ResponseWriter, r *http.Request, os ProbeOS, identifier string) {
	if d.metrics != nil {
		d.metrics.ProbeRedirects.Inc()
	}
	query := url.Values{}
	if identifier != "" {
		query.Set("device", identifier)
	}
	query.Set("source", string(os))
	target := d.portalURL + "?" + query.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// audit records the classified probe. Runs before the response is produced.
func (d *Detector) audit(ctx context.Context, r *http.Request, os ProbeOS, identifier string, authorized bool) {
	d.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionProbeDetected,
		EntityType: "device",
		EntityID:   identifier,
		IP:         identity.SourceIP(r),
		UserAgent:  r.UserAgent(),
		Severity:   audit.SeverityInfo,
		Details: map[string]any{
			"os":         string(os),
			"path":       r.URL.Path,
			"authorized": authorized,
		},
	})
}
