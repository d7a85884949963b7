package pricewatch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"text/template"
)

// Backend API paths, relative to the base path. Template keys are escaped
// before interpolation.
const (
	pathModels             = "/api/get_model/{{.name}}"
	pathPriceTrend         = "/api/get_price_trend/{{.name}}/{{.model}}"
	pathCheckPrice         = "/api/check_price"
	pathNotificationTest   = "/api/notification_test"
	pathJobStatus          = "/api/get_scraping_status/{{.handle}}"
	pathGetNotification    = "/api/get_notification_setting"
	pathUpdateNotification = "/api/update_notification_setting"
)

// remoteBasePath is prefixed to every API path when the backend is not local.
const remoteBasePath = "/dev"

// routeTemplates are parsed once with missingkey=error for fail-fast behaviour.
var routeTemplates = func() map[string]*template.Template {
	m := make(map[string]*template.Template)
	for _, p := range []string{pathModels, pathPriceTrend, pathJobStatus} {
		m[p] = template.Must(template.New(p).Option("missingkey=error").Parse(p))
	}
	return m
}()

// startPaths maps each job kind to the endpoint that starts it.
var startPaths = map[JobKind]string{
	JobCheckPrice:       pathCheckPrice,
	JobNotificationTest: pathNotificationTest,
}

// DefaultBasePath returns the base path for a backend host: empty for local
// hosts ("localhost" or any "127." address) and "/dev" otherwise.
//
// The host may include a port.
func DefaultBasePath(host string) string {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if hostname == "localhost" || strings.HasPrefix(hostname, "127.") {
		return ""
	}
	return remoteBasePath
}

// expandPath renders a path template with escaped parameters.
//
// Names and models are escaped as single path segments (slashes included).
// Job handles keep their slashes, since task ARNs are routed as paths.
func expandPath(path string, params map[string]string) (string, error) {
	tmpl, ok := routeTemplates[path]
	if !ok {
		return path, nil
	}

	encoded := make(map[string]string, len(params))
	for k, v := range params {
		if k == "handle" {
			encoded[k] = escapeSegments(v)
			continue
		}
		encoded[k] = url.PathEscape(v)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, encoded); err != nil {
		return "", fmt.Errorf("path template execution failed: %w", err)
	}
	return buf.String(), nil
}

// escapeSegments path-escapes each slash-separated segment of s.
func escapeSegments(s string) string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
