package model

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// ContentType is the crawler's own classification of a response body.
// It is derived from the Content-Type header, the URL extension and content
// sniffing; the server's header alone is not trusted.
type ContentType int

const (
	ContentTypeOther ContentType = iota
	ContentTypeHTML
	ContentTypeCSS
	ContentTypeJS
	ContentTypeImage
	ContentTypeFont
	ContentTypeJSON
	ContentTypeXML
	ContentTypeAudio
	ContentTypeVideo
	ContentTypeDocument
	ContentTypeRedirect
)

// String returns the lower-case name used in reports and the database.
func (c ContentType) String() string {
	switch c {
	case ContentTypeHTML:
		return "html"
	case ContentTypeCSS:
		return "css"
	case ContentTypeJS:
		return "js"
	case ContentTypeImage:
		return "image"
	case ContentTypeFont:
		return "font"
	case ContentTypeJSON:
		return "json"
	case ContentTypeXML:
		return "xml"
	case ContentTypeAudio:
		return "audio"
	case ContentTypeVideo:
		return "video"
	case ContentTypeDocument:
		return "document"
	case ContentTypeRedirect:
		return "redirect"
	default:
		return "other"
	}
}

// MarshalText encodes the content type by name.
func (c ContentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a content type name.
func (c *ContentType) UnmarshalText(text []byte) error {
	*c = ParseContentType(string(text))
	return nil
}

// ParseContentType is the inverse of String. Unknown names map to other.
func ParseContentType(s string) ContentType {
	for c := ContentTypeOther; c <= ContentTypeRedirect; c++ {
		if c.String() == s {
			return c
		}
	}
	return ContentTypeOther
}

var extensionTypes = map[string]ContentType{
	".html":  ContentTypeHTML,
	".htm":   ContentTypeHTML,
	".xhtml": ContentTypeHTML,
	".css":   ContentTypeCSS,
	".js":    ContentTypeJS,
	".mjs":   ContentTypeJS,
	".png":   ContentTypeImage,
	".jpg":   ContentTypeImage,
	".jpeg":  ContentTypeImage,
	".gif":   ContentTypeImage,
	".webp":  ContentTypeImage,
	".avif":  ContentTypeImage,
	".svg":   ContentTypeImage,
	".ico":   ContentTypeImage,
	".tif":   ContentTypeImage,
	".tiff":  ContentTypeImage,
	".woff":  ContentTypeFont,
	".woff2": ContentTypeFont,
	".ttf":   ContentTypeFont,
	".otf":   ContentTypeFont,
	".eot":   ContentTypeFont,
	".json":  ContentTypeJSON,
	".xml":   ContentTypeXML,
	".mp3":   ContentTypeAudio,
	".ogg":   ContentTypeAudio,
	".wav":   ContentTypeAudio,
	".mp4":   ContentTypeVideo,
	".webm":  ContentTypeVideo,
	".mov":   ContentTypeVideo,
	".pdf":   ContentTypeDocument,
	".doc":   ContentTypeDocument,
	".docx":  ContentTypeDocument,
	".xls":   ContentTypeDocument,
	".xlsx":  ContentTypeDocument,
	".ppt":   ContentTypeDocument,
	".pptx":  ContentTypeDocument,
	".odt":   ContentTypeDocument,
	".zip":   ContentTypeDocument,
}

// ClassifyContentType decides the ContentType of a response.
//
// The header wins when it is specific. A missing or generic header
// (text/plain, application/octet-stream) falls back to the URL extension and
// finally to sniffing the first bytes of the body, so HTML served with a
// wrong header is still parsed.
func ClassifyContentType(header, urlPath string, body []byte) ContentType {
	if ct, ok := classifyMediaType(header); ok {
		return ct
	}
	if ct, ok := extensionTypes[strings.ToLower(path.Ext(urlPath))]; ok {
		return ct
	}
	if len(body) == 0 {
		return ContentTypeOther
	}
	if ct, ok := classifyMediaType(http.DetectContentType(body)); ok {
		return ct
	}
	return ContentTypeOther
}

// classifyMediaType maps a media type to a ContentType. The boolean is false
// for missing or generic types that should not be trusted.
func classifyMediaType(header string) (ContentType, bool) {
	if header == "" {
		return ContentTypeOther, false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return ContentTypeHTML, true
	case mediaType == "text/css":
		return ContentTypeCSS, true
	case strings.Contains(mediaType, "javascript") || mediaType == "text/ecmascript":
		return ContentTypeJS, true
	case strings.HasPrefix(mediaType, "image/"):
		return ContentTypeImage, true
	case strings.HasPrefix(mediaType, "font/") || strings.Contains(mediaType, "font"):
		return ContentTypeFont, true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return ContentTypeJSON, true
	case mediaType == "application/xml" || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml"):
		return ContentTypeXML, true
	case strings.HasPrefix(mediaType, "audio/"):
		return ContentTypeAudio, true
	case strings.HasPrefix(mediaType, "video/"):
		return ContentTypeVideo, true
	case mediaType == "application/pdf" || strings.HasPrefix(mediaType, "application/vnd.") ||
		mediaType == "application/msword" || mediaType == "application/zip":
		return ContentTypeDocument, true
	default:
		return ContentTypeOther, false
	}
}
