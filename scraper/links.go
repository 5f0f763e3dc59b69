package scraper

import (
	"fmt"
	"strings"
)

// ChannelLinkPrefix is the prefix of every canonical source link.
const ChannelLinkPrefix = "https://t.me/"

const (
	publicHandleMarker  = "@"
	privateInviteMarker = "+"
)

// NormalizeSourceURL converts a tgstat channel link (or its bare last path
// segment) into a canonical t.me link. "@name" becomes https://t.me/name,
// anything else is a private invite hash and becomes https://t.me/+hash.
// Already canonical links come back unchanged.
func NormalizeSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, ChannelLinkPrefix) {
		rest := strings.Trim(strings.TrimPrefix(raw, ChannelLinkPrefix), "/")
		if rest == "" {
			return "", fmt.Errorf("no channel segment in %q", raw)
		}
		if strings.HasPrefix(rest, privateInviteMarker) {
			if rest == privateInviteMarker {
				return "", fmt.Errorf("empty invite hash in %q", raw)
			}
			return ChannelLinkPrefix + rest, nil
		}
		handle, err := publicHandle(rest, raw)
		if err != nil {
			return "", err
		}
		return ChannelLinkPrefix + handle, nil
	}

	segment := lastSegment(raw)
	if segment == "" {
		return "", fmt.Errorf("no channel segment in %q", raw)
	}

	if strings.HasPrefix(segment, publicHandleMarker) {
		handle, err := publicHandle(segment, raw)
		if err != nil {
			return "", err
		}
		return ChannelLinkPrefix + handle, nil
	}

	return ChannelLinkPrefix + privateInviteMarker + segment, nil
}

// publicHandle strips one leading "@" from segment. Telegram handles never
// contain "@" themselves, so a second one is rejected.
func publicHandle(segment, raw string) (string, error) {
	handle := strings.TrimPrefix(segment, publicHandleMarker)
	if handle == "" {
		return "", fmt.Errorf("empty channel handle in %q", raw)
	}
	if strings.HasPrefix(handle, publicHandleMarker) {
		return "", fmt.Errorf("invalid channel handle in %q", raw)
	}
	return handle, nil
}

// BuildPostURL appends the trailing identifier of postLink to sourceURL.
func BuildPostURL(sourceURL, postLink string) (string, error) {
	id := lastSegment(strings.TrimSpace(postLink))
	if id == "" {
		return "", fmt.Errorf("no post id in %q", postLink)
	}
	return sourceURL + "/" + id, nil
}

func lastSegment(link string) string {
	link = strings.TrimRight(link, "/")
	if i := strings.LastIndex(link, "/"); i >= 0 {
		return link[i+1:]
	}
	return link
}
