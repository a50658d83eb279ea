package phrames

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackName is used when a campaign name has no usable characters.
const fallbackName = "phrames"

// DownloadName returns the attachment name for a composite:
// "<campaignName>-framed-photo-<unixMillis>.png". The campaign name is
// folded to ASCII so it is safe in a Content-Disposition header.
func DownloadName(campaignName string, at time.Time) string {
	return fmt.Sprintf("%s-framed-photo-%d.png", fileSafe(campaignName), at.UnixMilli())
}

func fileSafe(name string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return fallbackName
	}
	return out
}
