// Package redirect decides how the paying client reaches the gateway's hosted
// payment page and how it returns afterwards. Decide is a pure function; the
// URL builders are its construction half, consumed by the intent builder.
package redirect

import (
	"net/url"
	"strings"

	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
)

type Action string

const (
	ActionSameWindow Action = "same_window"
	ActionNewTab     Action = "new_tab"
	ActionDeepLink   Action = "deep_link"
)

// Options carries caller-signaled facts Decide cannot observe itself.
type Options struct {
	// PreferSameTab is set when the caller asked for same-tab navigation.
	PreferSameTab bool
	// PopupBlocked is set when the caller already tried and failed to open
	// a popup.
	PopupBlocked bool
}

// Decide picks the redirect strategy for a client context. Embedded apps
// always get the deep link in the same window. Mobile browsers never get a
// popup. Web gets a new tab unless the caller opted out or popups are
// blocked.
func Decide(ctx clientcontext.ClientContext, opts Options) Action {
	switch ctx.Kind {
	case clientcontext.KindEmbeddedApp:
		return ActionDeepLink
	case clientcontext.KindMobileBrowser:
		return ActionSameWindow
	default:
		if opts.PreferSameTab || opts.PopupBlocked {
			return ActionSameWindow
		}
		return ActionNewTab
	}
}

// Relative redirect paths appended to the context base URL for browser
// contexts. Embedded contexts use deep-link targets instead.
const (
	pathSuccess = "/checkout/success"
	pathCancel  = "/checkout/cancel"
	pathStatus  = "/checkout/status"

	deepLinkSuccessHost = "payment-success"
	deepLinkCancelHost  = "payment-cancel"
)

// CallbackURLs builds the three canonical callback URLs for a context. For
// embedded apps, success and redirect both point at the deep-link success
// target annotated with the business type, so the native shell can route the
// user without another network hop.
func CallbackURLs(ctx clientcontext.ClientContext, businessType intent.BusinessType) intent.CallbackURLs {
	if ctx.Embedded() {
		success := deepLink(ctx.BaseURL, deepLinkSuccessHost, businessType)
		return intent.CallbackURLs{
			Success:  success,
			Cancel:   deepLink(ctx.BaseURL, deepLinkCancelHost, businessType),
			Redirect: success,
		}
	}
	return intent.CallbackURLs{
		Success:  joinURL(ctx.BaseURL, pathSuccess),
		Cancel:   joinURL(ctx.BaseURL, pathCancel),
		Redirect: joinURL(ctx.BaseURL, pathStatus),
	}
}

func deepLink(prefix, host string, businessType intent.BusinessType) string {
	v := url.Values{}
	v.Set("type", string(businessType))
	return prefix + host + "?" + v.Encode()
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
