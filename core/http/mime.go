package http

import "path"

// ContentType returns the MIME type for a file name based on its suffix.
// Unknown suffixes are served as text/plain.
func ContentType(name string) string {
	switch path.Ext(name) {
	case ".html":
		return "text/html"
	case ".xml":
		return "text/xml"
	case ".xhtml":
		return "application/xhtml+xml"
	case ".txt":
		return "text/plain"
	case ".rtf":
		return "application/rtf"
	case ".pdf":
		return "application/pdf"
	case ".word":
		return "application/msword"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".au":
		return "audio/basic"
	case ".mpeg", ".mpg":
		return "video/mpeg"
	case ".avi":
		return "video/x-msvideo"
	case ".gz":
		return "application/x-gzip"
	case ".tar":
		return "application/x-tar"
	case ".css":
		return "text/css"
	case ".js":
		return "text/javascript"
	default:
		return "text/plain"
	}
}
