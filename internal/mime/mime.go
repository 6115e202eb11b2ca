// Package mime implements media-type (MIME) parsing and the "permits"
// relation used by content negotiation (spec §4.4, component table row
// "MIME & QValue types"). It mirrors the well-known/Other split of the
// original implementation's MimeType enum (http/mime.rs) without
// reproducing its full ~90-entry table: a representative set of the
// common web media types is named explicitly, everything else falls back
// to the generic Other(group, sub) form which still participates fully in
// parsing, formatting, and permits-matching.
package mime

import "strings"

// Group is the top-level media type group ("text", "application", ...).
type Group string

const (
	GroupText        Group = "text"
	GroupApplication Group = "application"
	GroupImage       Group = "image"
	GroupAudio       Group = "audio"
	GroupVideo       Group = "video"
	GroupFont        Group = "font"
	GroupMultipart   Group = "multipart"
	GroupWildcard    Group = "*"
)

// MediaType is a parsed "group/sub" media type, e.g. "application/json".
// The zero value is invalid; construct with Parse.
type MediaType struct {
	Group Group
	Sub   string
}

// Well-known media types named explicitly (spec: "MIME & QValue types").
var (
	TextPlain       = MediaType{GroupText, "plain"}
	TextHTML        = MediaType{GroupText, "html"}
	TextCSS         = MediaType{GroupText, "css"}
	TextCSV         = MediaType{GroupText, "csv"}
	TextJavaScript  = MediaType{GroupText, "javascript"}
	ApplicationJSON = MediaType{GroupApplication, "json"}
	ApplicationXML  = MediaType{GroupApplication, "xml"}
	ApplicationOctetStream = MediaType{GroupApplication, "octet-stream"}
	ApplicationFormURLEncoded = MediaType{GroupApplication, "x-www-form-urlencoded"}
	ApplicationGzip = MediaType{GroupApplication, "gzip"}
	ApplicationPDF  = MediaType{GroupApplication, "pdf"}
	ApplicationZip  = MediaType{GroupApplication, "zip"}
	ImagePNG        = MediaType{GroupImage, "png"}
	ImageJPEG       = MediaType{GroupImage, "jpeg"}
	ImageGIF        = MediaType{GroupImage, "gif"}
	ImageSVG        = MediaType{GroupImage, "svg+xml"}
	ImageWebP       = MediaType{GroupImage, "webp"}
	FontWOFF2       = MediaType{GroupFont, "woff2"}
	MultipartForm   = MediaType{GroupMultipart, "form-data"}
	// Wildcard is "*/*": matches everything.
	Wildcard = MediaType{GroupWildcard, "*"}
)

// extByType maps common file extensions to a well-known media type, used
// by static-file serving (builtinhandlers) to set Content-Type.
var extByType = map[string]MediaType{
	".txt":   TextPlain,
	".html":  TextHTML,
	".htm":   TextHTML,
	".css":   TextCSS,
	".csv":   TextCSV,
	".js":    TextJavaScript,
	".json":  ApplicationJSON,
	".xml":   ApplicationXML,
	".pdf":   ApplicationPDF,
	".zip":   ApplicationZip,
	".gz":    ApplicationGzip,
	".png":   ImagePNG,
	".jpg":   ImageJPEG,
	".jpeg":  ImageJPEG,
	".gif":   ImageGIF,
	".svg":   ImageSVG,
	".webp":  ImageWebP,
	".woff2": FontWOFF2,
}

// FromExtension returns the well-known media type for a file extension
// (including the leading dot), or ApplicationOctetStream if unknown.
func FromExtension(ext string) MediaType {
	if mt, ok := extByType[strings.ToLower(ext)]; ok {
		return mt
	}
	return ApplicationOctetStream
}

// Parse parses a "group/sub" media type string. Per the grammar the
// original implementation enforces: no uppercase, no control bytes, no
// multibyte UTF-8, exactly one '/', non-empty group and sub. The `*`
// wildcard group and sub are permitted (they are the only characters
// exempt from the lowercase-token rule).
func Parse(s string) (MediaType, bool) {
	if s == "*/*" {
		return Wildcard, true
	}
	slash := strings.IndexByte(s, '/')
	if slash <= 0 || slash == len(s)-1 {
		return MediaType{}, false
	}
	group, sub := s[:slash], s[slash+1:]
	if strings.IndexByte(sub, '/') >= 0 {
		return MediaType{}, false
	}
	if !validToken(group) || !validToken(sub) {
		return MediaType{}, false
	}
	return MediaType{Group: Group(group), Sub: sub}, true
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	if s == "*" {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 31 || c >= 128 {
			return false
		}
		if c >= 'A' && c <= 'Z' {
			return false
		}
		if c == '*' {
			return false
		}
	}
	return true
}

// String renders "group/sub".
func (m MediaType) String() string {
	return string(m.Group) + "/" + m.Sub
}

// IsWildcardGroup reports whether the group itself is "*" (matches any
// group, e.g. the media group "*" paired with any sub).
func (m MediaType) IsWildcardGroup() bool {
	return m.Group == GroupWildcard
}

// Permits reports whether an Accept/consumes entry `m` permits the
// concrete media type `other`, per spec §4.4: exact equality, group
// wildcard ("group/*"), or the full wildcard ("*/*").
func (m MediaType) Permits(other MediaType) bool {
	if m.Group == GroupWildcard || m == Wildcard {
		return true
	}
	if m.Group != other.Group {
		return false
	}
	if m.Sub == "*" {
		return true
	}
	return m.Sub == other.Sub
}
