package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy is the browser Origin allow-list. With no entries only
// same-host origins are accepted; "*" accepts any origin.
type OriginPolicy struct {
	allowed map[string]struct{}
	any     bool
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.any = true
			continue
		}
		if norm, _, ok := normalizeOrigin(o); ok {
			p.allowed[norm] = struct{}{}
		}
	}
	return p
}

// normalizeOrigin returns scheme://host[:port] with default ports removed.
func normalizeOrigin(raw string) (origin, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host = strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, map[string]string{"http": ":80", "https": ":443"}[scheme])
	return scheme + "://" + host, host, true
}

// Allowed reports whether a request may proceed. Requests without an Origin
// header are not browser cross-origin requests and are let through.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return true
	}
	origin, host, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if p.any {
		return true
	}
	if len(p.allowed) == 0 {
		return strings.EqualFold(host, r.Host)
	}
	_, ok = p.allowed[origin]
	return ok
}

func (p *OriginPolicy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.Allowed(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", "GET,DELETE,OPTIONS")
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
