// Package clientcontext classifies the invocation environment of a checkout
// request. The classification happens once per request and the resulting
// ClientContext value is threaded through as an argument; nothing deeper in
// the call stack re-derives it.
package clientcontext

import (
	"log/slog"
	"strings"

	"github.com/fitmarket/payment-orchestration/internal"
)

type Kind string

const (
	KindWeb           Kind = "web"
	KindMobileBrowser Kind = "mobile_browser"
	KindEmbeddedApp   Kind = "embedded_app"
)

// RuntimeHint is an explicit signal supplied by a trusted embedding shell.
// User-agent sniffing alone cannot reliably identify a webview, so when the
// hint asserts embedded-app it wins over any heuristic.
type RuntimeHint string

const (
	HintNone        RuntimeHint = ""
	HintEmbeddedApp RuntimeHint = "embedded_app"
)

type RequestMeta struct {
	Host        string
	UserAgent   string
	RuntimeHint RuntimeHint
}

// ClientContext describes where the paying client runs. BaseURL is the
// externally reachable origin for web and mobile-browser contexts; for
// embedded-app contexts it is the deep-link prefix (scheme://).
type ClientContext struct {
	Kind    Kind
	BaseURL string
}

func (c ClientContext) Embedded() bool {
	return c.Kind == KindEmbeddedApp
}

type Resolver struct {
	cfg    *internal.CheckoutConfig
	logger *slog.Logger
}

func NewResolver(cfg *internal.CheckoutConfig, logger *slog.Logger) *Resolver {
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve classifies the request. A context whose base URL is not configured
// is a configuration error: resolving must fail closed rather than fall back
// to another environment's origin.
func (r *Resolver) Resolve(meta RequestMeta) (ClientContext, error) {
	if meta.RuntimeHint == HintEmbeddedApp {
		if r.cfg.AppDeepLinkScheme == "" {
			r.logger.Error("embedded-app request but no deep link scheme configured")
			return ClientContext{}, internal.NewConfigurationError(
				"deep link scheme not configured for embedded clients", internal.ErrCodeBaseURLUnresolved)
		}
		return ClientContext{
			Kind:    KindEmbeddedApp,
			BaseURL: r.cfg.AppDeepLinkScheme + "://",
		}, nil
	}

	if isMobileUserAgent(meta.UserAgent) {
		base := r.cfg.MobileWebBaseURL
		if base == "" {
			base = r.cfg.WebBaseURL
		}
		if base == "" {
			r.logger.Error("no base url configured for mobile browser context")
			return ClientContext{}, internal.NewConfigurationError(
				"base url not configured for mobile browser clients", internal.ErrCodeBaseURLUnresolved)
		}
		return ClientContext{Kind: KindMobileBrowser, BaseURL: base}, nil
	}

	if r.cfg.WebBaseURL == "" {
		r.logger.Error("no base url configured for web context")
		return ClientContext{}, internal.NewConfigurationError(
			"base url not configured for web clients", internal.ErrCodeBaseURLUnresolved)
	}
	return ClientContext{Kind: KindWeb, BaseURL: r.cfg.WebBaseURL}, nil
}

var mobileMarkers = []string{
	"android",
	"iphone",
	"ipad",
	"ipod",
	"windows phone",
	"mobile",
}

func isMobileUserAgent(ua string) bool {
	lower := strings.ToLower(ua)
	for _, marker := range mobileMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
