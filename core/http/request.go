package http

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/fast-static/core/buffer"
)

// ErrBadRequest reports a request line that does not match
// METHOD SP PATH SP HTTP/VERSION. The response layer turns it into a 400.
var ErrBadRequest = errors.New("malformed request")

// MaxLineSize bounds a request line that has not seen its CRLF yet
const MaxLineSize = 8192

// ParseState is the position of the incremental parser
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinish
)

var crlf = []byte("\r\n")

// defaultPages are bare names that are served as <name>.html
var defaultPages = map[string]struct{}{
	"/index":   {},
	"/welcome": {},
	"/video":   {},
	"/picture": {},
}

// Request holds the parse state of one HTTP/1.1 request. A Request is
// reused across the requests of a connection via Init.
type Request struct {
	state ParseState

	Method  string
	Path    string
	Version string
	Body    string

	Headers map[string]string
	Post    map[string]string
}

// Init resets the request for the next parse
func (r *Request) Init() {
	r.state = StateRequestLine
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Body = ""

	if r.Headers == nil {
		r.Headers = make(map[string]string, 8)
	} else {
		clear(r.Headers)
	}
	if r.Post == nil {
		r.Post = make(map[string]string)
	} else {
		clear(r.Post)
	}
}

// State returns the current parser state
func (r *Request) State() ParseState {
	return r.state
}

// Parse consumes one request from buf. It returns true once the request is
// complete. When more input is needed it returns false and leaves buf
// untouched, so the next call after Init sees the whole request again.
// A malformed request line drains buf and returns ErrBadRequest.
func (r *Request) Parse(buf *buffer.Buffer) (bool, error) {
	if r.Headers == nil {
		r.Init()
	}

	data := buf.Peek()
	off := 0

	for r.state != StateFinish {
		rest := data[off:]
		if len(rest) == 0 {
			return false, nil
		}
		end := bytes.Index(rest, crlf)

		switch r.state {
		case StateRequestLine:
			if end < 0 {
				if len(rest) > MaxLineSize {
					buf.RetrieveAll()
					return false, ErrBadRequest
				}
				return false, nil
			}
			if !r.parseRequestLine(rest[:end]) {
				buf.RetrieveAll()
				return false, ErrBadRequest
			}
			r.normalizePath()
			r.state = StateHeaders
			off += end + 2

		case StateHeaders:
			if end < 0 {
				if len(rest) > MaxLineSize {
					buf.RetrieveAll()
					return false, ErrBadRequest
				}
				return false, nil
			}
			r.parseHeader(rest[:end])
			// Only the terminating CRLF is left: no body follows.
			if len(rest) <= 2 {
				r.state = StateFinish
			}
			off += end + 2

		case StateBody:
			line := rest
			if end >= 0 {
				line = rest[:end]
				off += end + 2
			} else {
				off = len(data)
			}
			r.Body = string(line)
			r.parsePost()
			r.state = StateFinish
		}
	}

	buf.Retrieve(off)
	return true, nil
}

// parseRequestLine matches METHOD SP PATH SP HTTP/VERSION where no part
// contains a space.
func (r *Request) parseRequestLine(line []byte) bool {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return false
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return false
	}
	proto := rest[sp2+1:]
	if !bytes.HasPrefix(proto, []byte("HTTP/")) {
		return false
	}
	version := proto[len("HTTP/"):]
	if len(version) == 0 || bytes.IndexByte(version, ' ') >= 0 {
		return false
	}

	r.Method = string(line[:sp1])
	r.Path = string(rest[:sp2])
	r.Version = string(version)
	return true
}

func (r *Request) normalizePath() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if _, ok := defaultPages[r.Path]; ok {
		r.Path += ".html"
	}
}

// parseHeader stores KEY: VALUE. A line without a colon ends the header
// block.
func (r *Request) parseHeader(line []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		r.state = StateBody
		return
	}
	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	r.Headers[string(line[:colon])] = string(value)
}

func (r *Request) parsePost() {
	if r.Method != "POST" || len(r.Body) == 0 || !r.isFormEncoded() {
		return
	}
	parseForm(r.Body, r.Post)
}

// isFormEncoded accepts the standard Content-Type as well as the
// Connect-Type/x-www-from-urlencoded pair sent by older clients of this
// server.
func (r *Request) isFormEncoded() bool {
	if r.Headers["Connect-Type"] == "application/x-www-from-urlencoded" {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(r.Header("Content-Type")))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

// Header returns the value for key, falling back to a case-insensitive
// match.
func (r *Request) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// PostValue returns a decoded form field, or "" when absent
func (r *Request) PostValue(key string) string {
	return r.Post[key]
}

// KeepAlive reports whether the client asked for a persistent HTTP/1.1
// connection.
func (r *Request) KeepAlive() bool {
	if r.Version != "1.1" {
		return false
	}
	v, ok := r.Headers["Connection"]
	if !ok {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{v}, "keep-alive")
}
