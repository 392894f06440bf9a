package middleware

import (
	"net/http"
	"strings"
)

// directiveOrder fixes the order of directives in a built policy.
var directiveOrder = []string{
	"default-src",
	"connect-src",
	"frame-ancestors",
	"form-action",
	"base-uri",
	"object-src",
	"report-uri",
}

// Policy builds a Content-Security-Policy header value.
//
//	p := NewPolicy().DefaultSrc("'none'").FrameAncestors("'none'")
//	p.Build() // "default-src 'none'; frame-ancestors 'none'"
//
// A Policy is not safe for concurrent modification.
type Policy struct {
	directives map[string][]string
	reportOnly bool
}

// NewPolicy returns an empty policy.
func NewPolicy() *Policy {
	return &Policy{directives: make(map[string][]string)}
}

func (p *Policy) set(directive string, sources []string) *Policy {
	p.directives[directive] = sources
	return p
}

func (p *Policy) DefaultSrc(sources ...string) *Policy { return p.set("default-src", sources) }
func (p *Policy) ConnectSrc(sources ...string) *Policy { return p.set("connect-src", sources) }
func (p *Policy) FrameAncestors(sources ...string) *Policy { return p.set("frame-ancestors", sources) }
func (p *Policy) FormAction(sources ...string) *Policy { return p.set("form-action", sources) }
func (p *Policy) BaseURI(sources ...string) *Policy { return p.set("base-uri", sources) }
func (p *Policy) ObjectSrc(sources ...string) *Policy { return p.set("object-src", sources) }

// ReportURI sets where browsers post violation reports.
func (p *Policy) ReportURI(uri string) *Policy {
	if uri == "" {
		delete(p.directives, "report-uri")
		return p
	}
	return p.set("report-uri", []string{uri})
}

// ReportOnly switches to the Report-Only header: violations are reported, not blocked.
func (p *Policy) ReportOnly(enabled bool) *Policy {
	p.reportOnly = enabled
	return p
}

// Build renders the policy. Directives without sources are skipped.
func (p *Policy) Build() string {
	parts := make([]string, 0, len(p.directives))
	for _, d := range directiveOrder {
		if sources := p.directives[d]; len(sources) > 0 {
			parts = append(parts, d+" "+strings.Join(sources, " "))
		}
	}
	return strings.Join(parts, "; ")
}

// HeaderName returns the header the policy is sent in.
func (p *Policy) HeaderName() string {
	if p.reportOnly {
		return "Content-Security-Policy-Report-Only"
	}
	return "Content-Security-Policy"
}

// APIPolicy is the policy for JSON-only responses: nothing may load, embed or frame them.
func APIPolicy() *Policy {
	return NewPolicy().
		DefaultSrc("'none'").
		FrameAncestors("'none'").
		BaseURI("'none'").
		FormAction("'none'").
		ObjectSrc("'none'")
}

// SecurityHeaders sets the CSP of policy plus nosniff and no-referrer on every
// response. A nil policy uses APIPolicy.
func SecurityHeaders(policy *Policy) func(http.Handler) http.Handler {
	if policy == nil {
		policy = APIPolicy()
	}
	name, value := policy.HeaderName(), policy.Build()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if value != "" {
				h.Set(name, value)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
