package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"opconsole/media"
)

// BuildSDP produces a minimal audio-only session description advertising
// G.711 plus telephone-event, the profile Asterisk offers WebRTC/SIP
// operator endpoints.
func BuildSDP(host string, port int) string {
	sessID := time.Now().Unix()
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d %d IN IP4 %s\r\n", sessID, sessID, host)
	fmt.Fprintf(&b, "s=opconsole\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", host)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP 0 8 101\r\n", port)
	fmt.Fprintf(&b, "a=rtpmap:0 PCMU/8000\r\n")
	fmt.Fprintf(&b, "a=rtpmap:8 PCMA/8000\r\n")
	fmt.Fprintf(&b, "a=rtpmap:101 telephone-event/8000\r\n")
	fmt.Fprintf(&b, "a=fmtp:101 0-16\r\n")
	fmt.Fprintf(&b, "a=sendrecv\r\n")
	return b.String()
}

// ParseSDP extracts the remote audio endpoint from a session description:
// the connection address (session level, overridden by media level) and the
// first m=audio port. Everything else in the body is the media stack's
// business, not ours.
func ParseSDP(body string) (media.Endpoint, error) {
	var ep media.Endpoint
	inAudio := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "c=IN IP4 "):
			host := strings.TrimSpace(strings.TrimPrefix(line, "c=IN IP4 "))
			// A media-level c= overrides the session-level one, but only
			// for the audio section we care about.
			if ep.Host == "" || inAudio {
				ep.Host = host
			}
		case strings.HasPrefix(line, "m="):
			inAudio = false
			if !strings.HasPrefix(line, "m=audio ") {
				continue
			}
			if ep.Port != 0 {
				continue // first audio section wins
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return media.Endpoint{}, fmt.Errorf("parse sdp: malformed media line %q", line)
			}
			port, err := strconv.Atoi(fields[1])
			if err != nil {
				return media.Endpoint{}, fmt.Errorf("parse sdp: audio port: %w", err)
			}
			ep.Port = port
			inAudio = true
		}
	}
	if ep.Host == "" || ep.Port == 0 {
		return media.Endpoint{}, fmt.Errorf("parse sdp: no audio endpoint found")
	}
	return ep, nil
}
