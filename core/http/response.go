package http

import (
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/searchktools/fast-static/core/buffer"
	"github.com/searchktools/fast-static/core/mapped"
)

// CodeUndecided lets Build pick the status from the file it finds
const CodeUndecided = -1

const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusForbidden  = 403
	StatusNotFound   = 404
)

var statusText = map[int]string{
	StatusOK:         "OK",
	StatusBadRequest: "Bad Request",
	StatusForbidden:  "Forbidden",
	StatusNotFound:   "Not Found",
}

var errorPages = map[int]string{
	StatusBadRequest: "/400.html",
	StatusForbidden:  "/403.html",
	StatusNotFound:   "/404.html",
}

// ServerName appears in the footer of generated error pages
const ServerName = "fast-static"

// Response renders the status line and headers for one request and owns
// the mapping of the file that forms its body. At most one mapping is live
// per Response; Init and Release unmap it.
type Response struct {
	code      int
	keepAlive bool
	root      string
	path      string
	file      *mapped.File
}

// Init prepares the response for path under root. code is CodeUndecided
// or a status already chosen by the caller, such as StatusBadRequest.
func (r *Response) Init(root, reqPath string, keepAlive bool, code int) {
	r.Release()
	r.code = code
	r.keepAlive = keepAlive
	r.root = root
	r.path = reqPath
}

// Build writes the status line and headers into buf. When the target file
// can be mapped its bytes are left to File; otherwise an inline HTML error
// body is appended after the headers.
func (r *Response) Build(buf *buffer.Buffer) {
	info, err := os.Stat(r.target())
	if r.code == CodeUndecided || r.code == StatusOK {
		switch {
		case err != nil || info.IsDir():
			r.code = StatusNotFound
		case info.Mode().Perm()&0o004 == 0:
			r.code = StatusForbidden
		default:
			r.code = StatusOK
		}
	}

	if page, ok := errorPages[r.code]; ok {
		r.path = page
	}

	r.writeStatusLine(buf)
	r.writeHeaders(buf)
	r.writeContent(buf)
}

// target joins the cleaned request path onto the resource root, so ".."
// segments cannot leave it.
func (r *Response) target() string {
	return filepath.Join(r.root, filepath.FromSlash(path.Clean("/"+r.path)))
}

func (r *Response) writeStatusLine(buf *buffer.Buffer) {
	text, ok := statusText[r.code]
	if !ok {
		r.code = StatusBadRequest
		text = statusText[StatusBadRequest]
	}
	buf.AppendString("HTTP/1.1 ")
	buf.AppendString(strconv.Itoa(r.code))
	buf.AppendString(" ")
	buf.AppendString(text)
	buf.AppendString("\r\n")
}

func (r *Response) writeHeaders(buf *buffer.Buffer) {
	if r.keepAlive {
		buf.AppendString("Connection: keep-alive\r\n")
		buf.AppendString("Keep-Alive: max=6, timeout=120\r\n")
	} else {
		buf.AppendString("Connection: close\r\n")
	}
	buf.AppendString("Content-Type: ")
	buf.AppendString(ContentType(r.path))
	buf.AppendString("\r\n")
}

func (r *Response) writeContent(buf *buffer.Buffer) {
	f, err := mapped.Open(r.target())
	if err != nil {
		r.writeErrorContent(buf, "File NotFound!")
		return
	}
	r.file = f

	buf.AppendString("Content-Length: ")
	buf.AppendString(strconv.Itoa(f.Len()))
	buf.AppendString("\r\n\r\n")
}

func (r *Response) writeErrorContent(buf *buffer.Buffer, message string) {
	text, ok := statusText[r.code]
	if !ok {
		text = statusText[StatusBadRequest]
	}

	body := "<html><title>Error</title>" +
		`<body bgcolor="ffffff">` +
		strconv.Itoa(r.code) + ":" + text + "\n" +
		"<p>" + message + "</p>" +
		"<hr><em>" + ServerName + "</em></body></html>"

	buf.AppendString("Content-Length: ")
	buf.AppendString(strconv.Itoa(len(body)))
	buf.AppendString("\r\n\r\n")
	buf.AppendString(body)
}

// File returns the mapped body, or nil when the body was written inline
func (r *Response) File() []byte {
	return r.file.Bytes()
}

// FileLen returns the length of the mapped body
func (r *Response) FileLen() int {
	return r.file.Len()
}

// Release unmaps the body. It is safe to call more than once.
func (r *Response) Release() {
	if r.file != nil {
		r.file.Unmap()
		r.file = nil
	}
}

// Code returns the status chosen by Build
func (r *Response) Code() int {
	return r.code
}

// Path returns the served path, which Build may replace with an error page
func (r *Response) Path() string {
	return r.path
}

// KeepAlive reports whether the response keeps the connection open
func (r *Response) KeepAlive() bool {
	return r.keepAlive
}
