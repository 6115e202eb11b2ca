// Package routing implements path-template compilation and the routing
// decision ordering used to pick a handler for a request (spec §4.4),
// grounded on tii_router.rs's PathPart/TiiRouteable/TiiRoutingDecision.
package routing

import (
	"regexp"
	"strings"

	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/qvalue"
	"github.com/tiihttp/tii/internal/tiierr"
)

// partKind distinguishes the five path-segment shapes a route template
// can compile to (spec §4.4: "Literal, Variable, RegexVariable,
// RegexTailVariable, Wildcard").
type partKind int

const (
	partLiteral partKind = iota
	partVariable
	partRegexVariable
	partRegexTailVariable
	partWildcard
)

type pathPart struct {
	kind    partKind
	literal string
	varName string
	regex   *regexp.Regexp
}

func (p pathPart) isTail() bool {
	return p.kind == partWildcard || p.kind == partRegexTailVariable
}

// compilePath parses a route template into its segment list (spec §4.4
// path-template grammar: "{name}" variable, "{name:regex}" constrained
// variable — a tail regex variable if it is the template's last segment
// — and a trailing bare "*" wildcard that must be the final segment).
func compilePath(path string) ([]pathPart, error) {
	if path == "/" || path == "" {
		return nil, nil
	}
	p := path
	if strings.HasPrefix(p, "/") {
		p = p[1:]
	}

	var parts []pathPart
	for {
		if p == "" || p == "/" {
			return parts, nil
		}
		var seg string
		if idx := strings.IndexByte(p, '/'); idx >= 0 {
			seg, p = p[:idx], p[idx+1:]
		} else {
			seg, p = p, ""
		}

		if seg == "*" {
			parts = append(parts, pathPart{kind: partWildcard})
			if p != "" && p != "/" {
				return nil, tiierr.NewInvalidPathError(tiierr.MorePartsAfterWildcard, path, nil)
			}
			return parts, nil
		}

		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			variable := seg[1 : len(seg)-1]
			if name, pattern, found := strings.Cut(variable, ":"); found {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, tiierr.NewInvalidPathError(tiierr.RegexSyntaxError, path, err)
				}
				isTail := p == "" || p == "/"
				kind := partRegexVariable
				if isTail {
					kind = partRegexTailVariable
				}
				parts = append(parts, pathPart{kind: kind, varName: name, regex: re})
				continue
			}
			parts = append(parts, pathPart{kind: partVariable, varName: variable})
			continue
		}

		parts = append(parts, pathPart{kind: partLiteral, literal: seg})
	}
}

func (p pathPart) matches(segment, remaining string, params map[string]string) bool {
	switch p.kind {
	case partLiteral:
		return segment == p.literal
	case partVariable:
		params[p.varName] = segment
		return true
	case partWildcard:
		return true
	case partRegexVariable:
		if p.regex.MatchString(segment) {
			params[p.varName] = segment
			return true
		}
		return false
	case partRegexTailVariable:
		if p.regex.MatchString(remaining) {
			params[p.varName] = remaining
			return true
		}
		return false
	}
	return false
}

// Decision classifies how a candidate route relates to an incoming
// request. DecisionMatch carries the negotiated quality and any path
// parameters extracted along the way.
type DecisionKind int

const (
	DecisionPathMismatch DecisionKind = iota
	DecisionMethodMismatch
	DecisionMimeMismatch
	DecisionAcceptMismatch
	DecisionMatch
)

// rank gives the total order over decision kinds ignoring q-value (spec
// §4.4: "Match(q) > AcceptMismatch > MimeMismatch > MethodMismatch >
// PathMismatch").
func (k DecisionKind) rank() int {
	switch k {
	case DecisionPathMismatch:
		return 0
	case DecisionMethodMismatch:
		return 1
	case DecisionMimeMismatch:
		return 2
	case DecisionAcceptMismatch:
		return 3
	case DecisionMatch:
		return 4
	}
	return -1
}

// Decision is the outcome of matching one route against one request.
type Decision struct {
	Kind       DecisionKind
	Q          qvalue.QValue
	PathParams map[string]string
}

// Less reports whether d is strictly worse than other, implementing the
// total order named above; ties between two Match decisions break on
// q-value, and the router breaks further ties by declaration order by
// simply keeping the first-seen handler (">=" skip in the reference
// dispatch loop, mirrored by callers of this function).
func (d Decision) Less(other Decision) bool {
	if d.Kind != other.Kind {
		return d.Kind.rank() < other.Kind.rank()
	}
	if d.Kind == DecisionMatch {
		return d.Q < other.Q
	}
	return false
}

// Routeable holds the compiled form of a route's path template plus the
// method/consumes/produces it is declared against (spec §4.4 data
// model). It matches a request without knowing anything about handlers,
// so both HTTP and WebSocket routes can share it.
type Routeable struct {
	Path     string
	Method   httpx.Method
	Consumes []mime.MediaType
	Produces []mime.MediaType

	parts []pathPart
}

// NewRouteable compiles path and validates it eagerly so malformed route
// templates fail at registration time, not at request time.
func NewRouteable(path string, method httpx.Method, consumes, produces []mime.MediaType) (*Routeable, error) {
	parts, err := compilePath(path)
	if err != nil {
		return nil, err
	}
	return &Routeable{Path: path, Method: method, Consumes: consumes, Produces: produces, parts: parts}, nil
}

func (r *Routeable) matchesPath(requestPath string, params map[string]string) bool {
	if !strings.HasPrefix(requestPath, "/") {
		return false
	}
	rest := requestPath[1:]
	if rest == "" && len(r.parts) == 0 {
		return true
	}

	parts := r.parts
	for {
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			seg, remaining := rest[:idx], rest[idx+1:]
			if len(parts) == 0 {
				return false
			}
			part := parts[0]
			parts = parts[1:]
			if !part.matches(seg, rest, params) {
				return false
			}
			if part.isTail() {
				return true
			}
			rest = remaining
			continue
		}

		if len(parts) > 0 {
			part := parts[0]
			parts = parts[1:]
			if !part.matches(rest, rest, params) {
				return false
			}
			if part.isTail() {
				return true
			}
			rest = ""
			continue
		}

		return rest == ""
	}
}

// Matches evaluates this route against a request, implementing spec
// §4.4's path -> method -> consumes -> produces evaluation order.
func (r *Routeable) Matches(rc *ctx.RequestContext) Decision {
	head := rc.RequestHead()
	params := make(map[string]string)
	if !r.matchesPath(head.Path, params) {
		return Decision{Kind: DecisionPathMismatch}
	}
	if len(params) == 0 {
		params = nil
	}

	if !r.Method.Equal(head.Method) {
		return Decision{Kind: DecisionMethodMismatch}
	}

	if head.ContentType != nil {
		found := false
		for _, c := range r.Consumes {
			if c.Permits(*head.ContentType) {
				found = true
				break
			}
		}
		if !found {
			return Decision{Kind: DecisionMimeMismatch}
		}
	}

	if len(r.Produces) == 0 {
		return Decision{Kind: DecisionMatch, Q: qvalue.Max, PathParams: params}
	}

	if len(head.Accept) == 0 {
		return Decision{Kind: DecisionMimeMismatch}
	}

	q, ok := head.Accept.BestQuality(r.Produces)
	if !ok {
		return Decision{Kind: DecisionAcceptMismatch}
	}
	return Decision{Kind: DecisionMatch, Q: q, PathParams: params}
}
