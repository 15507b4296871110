package article

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	fingerprintLength = 12
	assetHashLength   = 8
	maxSlugLength     = 120
	fallbackSlug      = "article"
)

// Fingerprint derives the stable record id from the title and the original image URL.
// Both inputs may be empty.
func Fingerprint(title, imageURL string) string {
	return digest(title, imageURL)[:fingerprintLength]
}

// AssetHash is the short hash embedded in derived image file names.
func AssetHash(title, originalURL string) string {
	return digest(title, originalURL)[:assetHashLength]
}

func digest(title, imageURL string) string {
	content := fmt.Sprintf("%s|%s", strings.TrimSpace(title), strings.TrimSpace(imageURL))
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug turns a title into a file-name-safe token. Letters of any script survive,
// combining marks are dropped, whitespace becomes '-'.
func Slug(title string) string {
	folded, _, err := transform.String(stripMarks, strings.TrimSpace(title))
	if err != nil {
		folded = strings.TrimSpace(title)
	}

	var b strings.Builder
	dash := false
	n := 0
	for _, r := range strings.ToLower(folded) {
		if n >= maxSlugLength {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
			n++
		case unicode.IsSpace(r) || r == '-':
			if !dash && b.Len() > 0 {
				b.WriteRune('-')
				dash = true
				n++
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// AssetName is the content-addressed file name for an image derived from (title, originalURL).
func AssetName(title, originalURL, ext string) string {
	return fmt.Sprintf("%s-%s%s", Slug(title), AssetHash(title, originalURL), ext)
}

// Permalink builds the public article page link for a stored record.
func Permalink(siteBase, articlePage string, loc Locator) string {
	return fmt.Sprintf("%s/%s?path=%s",
		strings.TrimRight(siteBase, "/"),
		strings.TrimLeft(articlePage, "/"),
		url.QueryEscape(loc.String()))
}
