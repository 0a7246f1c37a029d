// Package manifest implements the HLS playlist rewriting engine: it locates
// every URI reference inside a playlist text and rewrites it into proxied
// form so that subsequent requests for those resources re-enter the relay.
package manifest

import (
	"net/url"
	"strings"
)

// Directive prefixes whose URI occupies the immediately following line.
const (
	streamInfPrefix = "#EXT-X-STREAM-INF:"
	extInfPrefix    = "#EXTINF:"
)

// Directive prefixes carrying the URI as a quoted attribute on the same line.
const (
	mapPrefix    = "#EXT-X-MAP:"
	mediaPrefix  = "#EXT-X-MEDIA:"
	iFramePrefix = "#EXT-X-I-FRAME-STREAM-INF:"
)

// Rewriter rewrites URI references in playlist text into proxied URLs of the
// form <ProxyBase>?url=<absolute>, with &referer=<Referer> appended when a
// referer was supplied. The absolute URL is embedded literally, without an
// extra percent-encoding step.
type Rewriter struct {
	ProxyBase string // proxy endpoint URL, no query string
	Referer   string // optional referer forwarded as a query parameter
}

// Rewrite scans the playlist line by line, dispatching on directive kind, and
// returns the rewritten text together with the number of rewritten URIs.
//
// Rewriting is substring substitution only: the line count, directive order,
// and all non-URI bytes are preserved. An unrecognized or malformed directive
// is left byte-identical in the output.
func (rw *Rewriter) Rewrite(content, baseURL string) (string, int) {
	lines := strings.Split(content, "\n")

	count := 0
	pending := false // previous line was a directive whose URI follows

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if pending {
			pending = false
			// The URI must occupy the very next line; a directive, comment,
			// or blank line in its place means no rewrite for that occurrence.
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				lines[i] = strings.Replace(line, trimmed, rw.proxied(Resolve(baseURL, trimmed)), 1)
				count++
				continue
			}
		}

		if !strings.HasPrefix(trimmed, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, streamInfPrefix), strings.HasPrefix(trimmed, extInfPrefix):
			pending = true
		case strings.HasPrefix(trimmed, mapPrefix),
			strings.HasPrefix(trimmed, mediaPrefix),
			strings.HasPrefix(trimmed, iFramePrefix):
			if out, ok := rw.rewriteURIAttr(line, baseURL); ok {
				lines[i] = out
				count++
			}
		}
	}

	return strings.Join(lines, "\n"), count
}

// rewriteURIAttr replaces the value of the first URI="..." attribute on the
// line, leaving every other byte intact. It reports false when the line
// carries no well-formed quoted URI.
func (rw *Rewriter) rewriteURIAttr(line, baseURL string) (string, bool) {
	const marker = `URI="`

	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	start := i + len(marker)
	n := strings.Index(line[start:], `"`)
	if n < 0 {
		return "", false
	}
	raw := line[start : start+n]
	if raw == "" {
		return "", false
	}

	return line[:start] + rw.proxied(Resolve(baseURL, raw)) + line[start+n:], true
}

// proxied builds the proxy re-entry URL for a resolved absolute resource URL.
func (rw *Rewriter) proxied(absolute string) string {
	u := rw.ProxyBase + "?url=" + absolute
	if rw.Referer != "" {
		u += "&referer=" + rw.Referer
	}
	return u
}

// Resolve turns a raw playlist URI reference into an absolute URL.
//
// An already-absolute reference is returned unchanged. A reference starting
// with "/" keeps only the base URL's scheme and host. Anything else resolves
// against the base URL's directory per standard relative-URL resolution.
// An unparseable base or reference is returned as-is rather than dropped.
func Resolve(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}

	if strings.HasPrefix(ref, "/") {
		return base.Scheme + "://" + base.Host + ref
	}

	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
