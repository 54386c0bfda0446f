package library

import "regexp"

var (
	drivePathID  = regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`)
	driveQueryID = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`)
)

const directDownload = "https://drive.google.com/uc?export=download&id="

// NormalizeURL rewrites file sharing links into direct download links. Other
// URLs are returned unchanged.
func NormalizeURL(raw string) string {
	for _, re := range []*regexp.Regexp{drivePathID, driveQueryID} {
		if m := re.FindStringSubmatch(raw); m != nil {
			return directDownload + m[1]
		}
	}
	return raw
}
