package vault

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/grovetools/superstate/pkg/models"
)

var (
	wikiLinkRe = regexp.MustCompile(`\[\[([^\]\n]+)\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[[^\]\n]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	inlineTag  = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]*[\p{L}_/-][\p{L}\p{N}_/-]*)`)
)

// RawLink is a link target as written in a document.
type RawLink struct {
	Target string
	Wiki   bool
}

// ExtractLinks returns the wiki and markdown link targets of body in order
// of appearance, without duplicates. Anchors, aliases and external URLs are
// dropped.
func ExtractLinks(body string) []RawLink {
	body = stripCode(body)
	type hit struct {
		pos  int
		link RawLink
	}
	var hits []hit
	for _, m := range wikiLinkRe.FindAllStringSubmatchIndex(body, -1) {
		hits = append(hits, hit{m[0], RawLink{Target: body[m[2]:m[3]], Wiki: true}})
	}
	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(body, -1) {
		hits = append(hits, hit{m[0], RawLink{Target: body[m[2]:m[3]]}})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]struct{})
	var out []RawLink
	for _, h := range hits {
		target := cleanTarget(h.link.Target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, RawLink{Target: target, Wiki: h.link.Wiki})
	}
	return out
}

// ExtractTags returns the normalized inline tags of body, sorted.
func ExtractTags(body string) []string {
	body = stripCode(body)
	seen := make(map[string]struct{})
	for _, m := range inlineTag.FindAllStringSubmatch(body, -1) {
		seen[models.NormalizeTag(m[1])] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func cleanTarget(t string) string {
	if i := strings.Index(t, "|"); i >= 0 {
		t = t[:i]
	}
	if i := strings.Index(t, "#"); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)
	if strings.Contains(t, "://") || strings.HasPrefix(t, "mailto:") {
		return ""
	}
	return t
}

// stripCode blanks fenced code blocks and inline code spans.
func stripCode(body string) string {
	if !strings.Contains(body, "`") {
		return body
	}
	var b strings.Builder
	fenced := false
	for _, line := range strings.SplitAfter(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fenced = !fenced
			b.WriteString("\n")
			continue
		}
		if fenced {
			b.WriteString("\n")
			continue
		}
		b.WriteString(stripInline(line))
	}
	return b.String()
}

func stripInline(line string) string {
	parts := strings.Split(line, "`")
	for i := 1; i < len(parts); i += 2 {
		if i == len(parts)-1 {
			break // unbalanced backtick
		}
		parts[i] = ""
	}
	return strings.Join(parts, "`")
}

// resolveLink turns a link written in from into a vault path. Bare wiki
// names are looked up with byName; unresolved names point at a sibling.
func resolveLink(from string, l RawLink, byName func(string) string) string {
	target := l.Target
	if path.Ext(target) == "" {
		target += ".md"
	}
	switch {
	case strings.HasPrefix(target, "/"):
		return path.Clean(target)
	case l.Wiki && !strings.Contains(target, "/"):
		if p := byName(strings.ToLower(target)); p != "" {
			return p
		}
		return path.Join(models.ParentPath(from), target)
	case l.Wiki:
		return path.Clean("/" + target)
	default:
		return path.Join(models.ParentPath(from), target)
	}
}
