package markup

import "github.com/microcosm-cc/bluemonday"

// policy allows exactly the formatting the editor can produce: inline
// styling, lists, alignment and images. Everything else, script tags in
// particular, is stripped on both the write and render paths since stored
// content ends up injected into author views verbatim.
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "u", "ul", "ol", "li")
	p.AllowAttrs("src").OnElements("img")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https")
	// Blob stores without a public base URL resolve to server-relative
	// paths like /media/posts/..., which must survive sanitization
	p.AllowRelativeURLs(true)
	p.AllowStyles("text-align").MatchingEnum("left", "center", "right").OnElements("p", "li", "ul", "ol")
	return p
}

// Sanitize reduces a markup fragment to the allow-listed subset.
func Sanitize(fragment string) string {
	return policy.Sanitize(fragment)
}
