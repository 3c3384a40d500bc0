package api

import (
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
)

// Headers carrying the token pair for script-driven posts without a form body
const (
	HeaderCSRFName  = "X-CSRF-Name"
	HeaderCSRFToken = "X-CSRF-Token"
)

// maxMultipartMemory is how much of a multipart body is held in memory;
// larger file parts spill to temporary files
const maxMultipartMemory = 32 << 20

// httpRequestContext adapts an *http.Request to core.RequestContext.
type httpRequestContext struct {
	r          *http.Request
	trustProxy bool
	now        time.Time
	fields     map[string]string
}

func (a *API) requestContext(r *http.Request) *httpRequestContext {
	return &httpRequestContext{
		r:          r,
		trustProxy: a.config.Server.TrustProxy,
		now:        a.now(),
	}
}

func (c *httpRequestContext) SessionID() string {
	id, _ := GetSessionID(c.r.Context())
	return id
}

func (c *httpRequestContext) Method() string {
	return c.r.Method
}

// PostFields returns the first value of every POST body field, urlencoded
// or multipart. File parts are not fields. The token headers fill in CSRF
// fields the body does not carry.
func (c *httpRequestContext) PostFields() map[string]string {
	if c.fields != nil {
		return c.fields
	}

	fields := make(map[string]string)
	if err := c.parseBody(); err == nil {
		for key, values := range c.r.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
		if c.r.MultipartForm != nil {
			for key, values := range c.r.MultipartForm.Value {
				if _, ok := fields[key]; !ok && len(values) > 0 {
					fields[key] = values[0]
				}
			}
		}
	}

	if _, ok := fields[core.FieldName]; !ok {
		if v := c.r.Header.Get(HeaderCSRFName); v != "" {
			fields[core.FieldName] = v
		}
	}
	if _, ok := fields[core.FieldToken]; !ok {
		if v := c.r.Header.Get(HeaderCSRFToken); v != "" {
			fields[core.FieldToken] = v
		}
	}

	c.fields = fields
	return fields
}

func (c *httpRequestContext) parseBody() error {
	mediaType, _, err := mime.ParseMediaType(c.r.Header.Get("Content-Type"))
	if err == nil && mediaType == "multipart/form-data" {
		return c.r.ParseMultipartForm(maxMultipartMemory)
	}
	return c.r.ParseForm()
}

func (c *httpRequestContext) UserAgent() string {
	return c.r.UserAgent()
}

func (c *httpRequestContext) ClientIP() string {
	return getClientIP(c.r, c.trustProxy)
}

func (c *httpRequestContext) Now() time.Time {
	return c.now
}

// getClientIP returns the direct peer address, or the first forwarded
// address when the server sits behind a trusted proxy.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var _ core.RequestContext = (*httpRequestContext)(nil)
