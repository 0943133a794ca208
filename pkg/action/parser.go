// pkg/action/parser.go
package action

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

// The command vocabulary is a fixed set of self-closing tags. Models sometimes
// drop the trailing slash, so the extractor tolerates plain `<click id="3">`
// and canonicalizes it before matching. Anything the model writes outside of
// tags is ignored; a reply with no recognizable tag is unparseable.
var (
	tagExtractor = regexp.MustCompile(`<[^<>/][^<>]*>`)

	nextPattern     = regexp.MustCompile(`<next\s*/>`)
	thinkingPattern = regexp.MustCompile(`<thinking\s+message="([^"]*)"\s*/>`)
	memorizePattern = regexp.MustCompile(`<memorize\s+text="([^"]*)"\s*/>`)
	donePattern     = regexp.MustCompile(`<done\s+result="([^"]*)"\s*/>`)

	commandPatterns = []struct {
		kind    Kind
		pattern *regexp.Regexp
	}{
		{KindBack, regexp.MustCompile(`^<back\s*/>`)},
		{KindClick, regexp.MustCompile(`^<click\s+id="(\d+)"\s*/>`)},
		{KindScroll, regexp.MustCompile(`^<scroll_(down|up)\s*/>`)},
		{KindType, regexp.MustCompile(`^<type\s+text="([^"]*)"\s+id="(\d+)"(?:\s+enter="(true|false)")?\s*/>`)},
		{KindNavigate, regexp.MustCompile(`^<navigate\s+url="([^"]*)"\s*/>`)},
		{KindWait, regexp.MustCompile(`^<wait\s+ms="(\d+)"\s*/>`)},
	}
)

// Limits applied to wait durations before execution.
const (
	minWait = 100 * time.Millisecond
	maxWait = 30 * time.Second
)

// Parse matches response against the command grammar and returns exactly one
// typed action. Memorize tags and the continuation tag are extracted first and
// attached to whatever primary action remains; a reply carrying only thinking
// (and/or memorize) tags yields a thinking action.
func Parse(response string) (*Parsed, error) {
	tags := tagExtractor.FindAllString(response, -1)
	if len(tags) == 0 {
		return nil, newError(KindUnparseable, "no command tag found in response")
	}
	for i, tag := range tags {
		if !strings.HasSuffix(tag, "/>") {
			tags[i] = strings.TrimSuffix(tag, ">") + " />"
		}
	}
	commandStr := strings.Join(tags, " ")

	p := &Parsed{ID: uuid.NewString()}

	// Continuation flag.
	p.Continue = nextPattern.MatchString(commandStr)
	commandStr = strings.TrimSpace(nextPattern.ReplaceAllString(commandStr, ""))

	// Thinking: keep the last message, like a running commentary.
	if thoughts := thinkingPattern.FindAllStringSubmatch(commandStr, -1); len(thoughts) > 0 {
		p.Message = thoughts[len(thoughts)-1][1]
	}

	// Memorize notes accompany any primary action.
	for _, m := range memorizePattern.FindAllStringSubmatch(commandStr, -1) {
		p.Memorize = append(p.Memorize, m[1])
	}
	commandStr = strings.TrimSpace(memorizePattern.ReplaceAllString(commandStr, ""))

	// Finish short-circuits everything else.
	if done := donePattern.FindStringSubmatch(commandStr); done != nil {
		p.Kind = KindFinish
		p.Result = done[1]
		return p, nil
	}

	commandStr = strings.TrimSpace(thinkingPattern.ReplaceAllString(commandStr, ""))

	if commandStr == "" {
		if p.Message == "" && len(p.Memorize) == 0 {
			return nil, newError(KindUnparseable, "response contained only a continuation tag")
		}
		p.Kind = KindThinking
		return p, nil
	}

	for _, cp := range commandPatterns {
		m := cp.pattern.FindStringSubmatch(commandStr)
		if m == nil {
			continue
		}
		p.Kind = cp.kind
		switch cp.kind {
		case KindClick:
			p.ElementIndex = mustAtoi(m[1])
		case KindScroll:
			p.Direction = ScrollDirection(m[1])
			p.Pages = 1
		case KindType:
			p.Text = m[1]
			p.ElementIndex = mustAtoi(m[2])
			p.Enter = m[3] == "true"
		case KindNavigate:
			p.URL = m[1]
		case KindWait:
			ms := mustAtoi(m[1])
			p.Wait = clampWait(time.Duration(ms) * time.Millisecond)
		}
		return p, nil
	}

	return nil, newError(KindUnparseable, "invalid command format: %s", commandStr)
}

// Ground validates the action against the observation that produced this
// step's prompt. It must run before execution: element references are only
// meaningful within the observation instance the model actually saw.
func Ground(p *Parsed, obs *observe.PageObservation) error {
	if obs == nil {
		return newError(KindStaleReference, "no current observation to ground against")
	}

	switch p.Kind {
	case KindClick, KindType:
		if _, ok := obs.Element(p.ElementIndex); !ok {
			return newError(KindStaleReference,
				"element index %d not present in observation %s (%d elements)",
				p.ElementIndex, obs.ID, len(obs.Elements))
		}
	case KindScroll:
		if p.Direction == ScrollDown && !obs.Viewport.CanScrollDown {
			return newError(KindInfeasible, "page cannot scroll down any further")
		}
	case KindBack:
		if !obs.Nav.CanGoBack {
			return newError(KindInfeasible, "browser history has no previous page")
		}
	case KindNavigate:
		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return newError(KindInfeasible, "navigate target %q is not an http(s) URL", p.URL)
		}
	}

	p.ObservationID = obs.ID
	return nil
}

func clampWait(d time.Duration) time.Duration {
	if d < minWait {
		return minWait
	}
	if d > maxWait {
		return maxWait
	}
	return d
}

func mustAtoi(s string) int {
	// The patterns only capture \d+ so this cannot fail.
	n, _ := strconv.Atoi(s)
	return n
}
