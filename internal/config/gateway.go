package config

import (
	"os"
	"strings"
	"time"
)

// GatewayConfig configures the edge proxy in front of the backend.
type GatewayConfig struct {
	// ListenAddress defaults to ":3000".
	ListenAddress string

	// BackendURL is the base URL requests are forwarded to.
	BackendURL string

	// ImageEditTimeout applies to /api/image-edit; DefaultTimeout to every other route.
	ImageEditTimeout time.Duration
	DefaultTimeout   time.Duration

	CORSOrigins []string
}

const (
	defaultGatewayAddress = ":3000"
	defaultBackendPort    = "5000"

	envGatewayAddress       = "GATEWAY_ADDR"
	envBackendURL           = "BACKEND_URL"
	envPublicBackendURL     = "NEXT_PUBLIC_BACKEND_URL"
	envPublicAPIURL         = "NEXT_PUBLIC_API_URL"
	envPublicBackendPort    = "NEXT_PUBLIC_BACKEND_PORT"
	gatewayImageEditTimeout = 90 * time.Second
	gatewayDefaultTimeout   = 30 * time.Second
)

// LoadGateway reads the proxy configuration. It never fails: every value has
// a local-development default.
func LoadGateway() GatewayConfig {
	cfg := GatewayConfig{
		ListenAddress:    firstNonEmpty(os.Getenv(envGatewayAddress), defaultGatewayAddress),
		BackendURL:       ResolveBackendURL(os.Getenv),
		ImageEditTimeout: gatewayImageEditTimeout,
		DefaultTimeout:   gatewayDefaultTimeout,
		CORSOrigins:      splitList(os.Getenv(envCORSOrigins)),
	}
	return cfg
}

// ResolveBackendURL picks the first configured backend URL, falling back to
// localhost on NEXT_PUBLIC_BACKEND_PORT (default 5000).
func ResolveBackendURL(getenv func(string) string) string {
	base := firstNonEmpty(
		strings.TrimSpace(getenv(envBackendURL)),
		strings.TrimSpace(getenv(envPublicBackendURL)),
		strings.TrimSpace(getenv(envPublicAPIURL)),
	)
	if base == "" {
		port := firstNonEmpty(strings.TrimSpace(getenv(envPublicBackendPort)), defaultBackendPort)
		base = "http://localhost:" + port
	}
	return strings.TrimRight(base, "/")
}
