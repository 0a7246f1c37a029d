package manifest

import (
	"net/url"
	"strings"
)

// playlistContentTypes are the MIME types origins use for HLS manifests.
var playlistContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
}

// IsPlaylist reports whether a fetched resource must be treated as an HLS
// playlist (text, subject to rewriting) rather than an opaque media segment.
//
// The content type is authoritative when present and recognized; the .m3u8
// URL suffix is the fallback for origins that serve manifests with a generic
// content type.
func IsPlaylist(contentType, rawURL string) bool {
	ct := strings.ToLower(contentType)
	for _, t := range playlistContentTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".m3u8")
}
