package handler

import (
	"path"
	"strings"
)

// PathClass - класс пути для Route Guard.
type PathClass int

const (
	ClassPublic PathClass = iota
	ClassAuthRequired
	ClassAdminRequired
)

func (c PathClass) String() string {
	switch c {
	case ClassAuthRequired:
		return "auth_required"
	case ClassAdminRequired:
		return "admin_required"
	}
	return "public"
}

// pathPattern - шаблон пути; "*" совпадает ровно с одним непустым сегментом.
type pathPattern []string

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func compilePatterns(raw []string) []pathPattern {
	patterns := make([]pathPattern, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			patterns = append(patterns, pathPattern(splitPath(r)))
		}
	}
	return patterns
}

func (p pathPattern) match(segments []string) bool {
	if len(p) != len(segments) {
		return false
	}
	for i, seg := range p {
		if seg == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if seg != segments[i] {
			return false
		}
	}
	return true
}

func matchAny(patterns []pathPattern, segments []string) bool {
	for _, p := range patterns {
		if p.match(segments) {
			return true
		}
	}
	return false
}

// PathClassifier раскладывает пути по классам.
// Приоритет: admin-required > auth-required > public; не попавшее никуда - public.
type PathClassifier struct {
	public    []pathPattern
	auth      []pathPattern
	admin     []pathPattern
	authPages []pathPattern
}

// NewPathClassifier компилирует списки шаблонов.
func NewPathClassifier(public, authRequired, adminRequired, authPages []string) *PathClassifier {
	return &PathClassifier{
		public:    compilePatterns(public),
		auth:      compilePatterns(authRequired),
		admin:     compilePatterns(adminRequired),
		authPages: compilePatterns(authPages),
	}
}

// Classify - класс пути.
func (c *PathClassifier) Classify(p string) PathClass {
	segments := splitPath(path.Clean("/" + p))
	switch {
	case matchAny(c.admin, segments):
		return ClassAdminRequired
	case matchAny(c.auth, segments):
		return ClassAuthRequired
	default:
		return ClassPublic
	}
}

// IsAuthPage - страница входа/регистрации.
func (c *PathClassifier) IsAuthPage(p string) bool {
	return matchAny(c.authPages, splitPath(path.Clean("/"+p)))
}

// bypassPrefixes - пути, которые Route Guard не трогает.
var bypassPrefixes = []string{"/api/", "/_next/static/", "/_next/image/"}

var bypassExact = map[string]bool{
	"/api":         true,
	"/favicon.ico": true,
	"/health":      true,
	"/metrics":     true,
}

// shouldBypass - API, статика фреймворка и файлы (последний сегмент с точкой).
func shouldBypass(p string) bool {
	if bypassExact[p] {
		return true
	}
	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	last := p[strings.LastIndex(p, "/")+1:]
	return strings.Contains(last, ".")
}
