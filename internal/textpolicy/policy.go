package textpolicy

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf16"
)

// Target selects the length limit applied to composed text.
type Target int

const (
	TargetMessage Target = iota
	TargetCaption
)

const (
	MaxMessageLength = 4096
	MaxCaptionLength = 1024
)

// Limit returns the platform length limit for t.
func (t Target) Limit() int {
	if t == TargetCaption {
		return MaxCaptionLength
	}
	return MaxMessageLength
}

// HiddenMode selects how the keyword block is rendered.
type HiddenMode string

const (
	HiddenSpoiler   HiddenMode = "spoiler"
	HiddenZeroWidth HiddenMode = "zerowidth"
)

const (
	invisibleSeparator = "\u2063"
	keywordSeparator   = " · "
	ellipsis           = "…"
)

// Policy is the immutable configuration of the text engine.
type Policy struct {
	// Footer is the rendered footer; empty disables it.
	Footer string
	// SignaturePhrase marks text that already carries the footer. Defaults to
	// the first visible line of Footer.
	SignaturePhrase string
	SkipIfHashtag   bool
	// SkipHashtags restricts SkipIfHashtag to these tags; empty means any hashtag.
	SkipHashtags    []string
	CreditSignature bool
	CreditPrefix    string
	HiddenMode      HiddenMode
	// HTML escapes author text and renders the spoiler block as a tg-spoiler span.
	HTML bool
}

// Input is one composition request.
type Input struct {
	Raw       string
	Signature string
	Keywords  []string
	Target    Target
}

var (
	hashtagOnlyRe = regexp.MustCompile(`^(?:#[^\s#]+)+$`)
	hashtagRe     = regexp.MustCompile(`(?:^|\s)(#[^\s#]+)`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// IsHashtagOnly reports whether every whitespace-separated token of text is
// a hashtag (or several glued together, as in "#a#b").
func IsHashtagOnly(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !hashtagOnlyRe.MatchString(f) {
			return false
		}
	}
	return true
}

// Hashtags returns the hashtags found in text, in order.
func Hashtags(text string) []string {
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// Decorates reports whether Compose would change raw. Callers use it to avoid
// drawing keywords for posts that are published verbatim.
func Decorates(raw, signature string, p Policy) bool {
	raw = strings.TrimSpace(raw)
	if IsHashtagOnly(raw) || p.hasSignaturePhrase(raw) || p.skipForHashtag(raw) {
		return false
	}
	return p.Footer != "" || (p.CreditSignature && signature != "") || p.HiddenMode != ""
}

// Compose applies the text policy to in. It never panics: a body that is
// published verbatim is returned as Verbatim renders it, an empty body yields the footer alone.
func Compose(in Input, p Policy) string {
	raw := strings.TrimSpace(in.Raw)

	if IsHashtagOnly(raw) || p.hasSignaturePhrase(raw) || p.skipForHashtag(raw) {
		return p.Verbatim(in.Raw)
	}

	suffix := ""
	if p.CreditSignature && strings.TrimSpace(in.Signature) != "" {
		suffix += "\n" + p.escape(p.CreditPrefix+strings.TrimSpace(in.Signature))
	}
	if p.Footer != "" {
		suffix += "\n\n" + p.Footer
	}
	hidden := p.hiddenBlock(in.Keywords)
	limit := in.Target.Limit()

	visible := join(p.escape(raw), suffix)
	if p.visibleLength(visible) > limit {
		visible = p.fit(raw, suffix, limit)
	}
	if hidden == "" || p.visibleLength(visible+hidden) > limit {
		return visible
	}
	if visible == "" {
		return strings.TrimLeft(hidden, "\n")
	}
	return visible + hidden
}

func join(body, suffix string) string {
	if body == "" {
		return strings.TrimLeft(suffix, "\n")
	}
	return body + suffix
}

// fit truncates the author body so that body+suffix fits limit. If the suffix
// alone does not fit, the body is returned truncated without decoration.
func (p Policy) fit(raw, suffix string, limit int) string {
	room := limit - p.visibleLength(suffix)
	if room <= len([]rune(ellipsis)) {
		return p.escape(truncate(raw, limit))
	}
	return p.escape(truncate(raw, room)) + suffix
}

// truncate cuts plain s to at most n UTF-16 units, ending with an ellipsis when cut.
func truncate(s string, n int) string {
	if utf16Len(s) <= n {
		return s
	}
	units := 0
	for i, r := range s {
		units += utf16.RuneLen(r)
		if units > n-1 {
			return strings.TrimRight(s[:i], " \n") + ellipsis
		}
	}
	return s
}

func (p Policy) hiddenBlock(keywords []string) string {
	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			words = append(words, p.escape(k))
		}
	}
	if len(words) == 0 || p.HiddenMode == "" {
		return ""
	}
	if p.HiddenMode == HiddenSpoiler && p.HTML {
		return "\n\n" + `<span class="tg-spoiler">` + strings.Join(words, keywordSeparator) + "</span>"
	}
	return "\n\n" + invisibleSeparator + strings.Join(words, invisibleSeparator+" "+invisibleSeparator)
}

func (p Policy) hasSignaturePhrase(raw string) bool {
	phrase := p.signaturePhrase()
	return phrase != "" && strings.Contains(raw, phrase)
}

func (p Policy) signaturePhrase() string {
	if p.SignaturePhrase != "" {
		return p.SignaturePhrase
	}
	plain := p.Footer
	if p.HTML {
		plain = PlainText(plain)
	}
	plain = strings.TrimSpace(plain)
	if i := strings.IndexByte(plain, '\n'); i >= 0 {
		plain = strings.TrimSpace(plain[:i])
	}
	return plain
}

func (p Policy) skipForHashtag(raw string) bool {
	if !p.SkipIfHashtag {
		return false
	}
	tags := Hashtags(raw)
	if len(p.SkipHashtags) == 0 {
		return len(tags) > 0
	}
	for _, tag := range tags {
		for _, designated := range p.SkipHashtags {
			if strings.EqualFold(tag, "#"+strings.TrimPrefix(designated, "#")) {
				return true
			}
		}
	}
	return false
}

// Verbatim renders raw undecorated, escaped for HTML parse mode.
func (p Policy) Verbatim(raw string) string {
	return p.escape(raw)
}

func (p Policy) escape(s string) string {
	if p.HTML {
		return html.EscapeString(s)
	}
	return s
}

// PlainText strips HTML tags and entities, leaving what a reader sees.
func PlainText(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, ""))
}

func (p Policy) visibleLength(s string) int {
	if p.HTML {
		return VisibleLength(s)
	}
	return utf16Len(s)
}

// VisibleLength counts s the way the platform does: UTF-16 units of the plain text.
func VisibleLength(s string) int {
	return utf16Len(PlainText(s))
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
