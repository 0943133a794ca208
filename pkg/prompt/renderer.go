// pkg/prompt/renderer.go

// Package prompt renders one step's grounded context into the document given
// to the reasoning model. Rendering is a pure function of its inputs: no side
// effects, no clock, no network. That purity is what keeps the control loop
// replayable and testable.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/xkilldash9x/glimpse-cli/pkg/history"
	"github.com/xkilldash9x/glimpse-cli/pkg/memory"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

// PageVisit is one entry of the per-run page trail (distinct from the
// conversation history).
type PageVisit struct {
	URL   string
	Title string
}

// Turn bundles everything the renderer needs for one step.
type Turn struct {
	Instruction string
	UserInput   string
	FirstTurn   bool
	Observation *observe.PageObservation
	History     []history.Entry
	Memory      []memory.Note
	PageTrail   []PageVisit
	// ExecError carries the previous step's execution or grounding failure so
	// the model can adapt instead of repeating it.
	ExecError string
}

// PromptContext is the structured document handed to the reasoning service.
type PromptContext struct {
	System        string
	User          string
	ImagePNG      []byte
	TokenEstimate int
}

const systemPrompt = `You are a personal assistant controlling a web browser.
You receive a screenshot of the current view at each turn. Every interactive
element is annotated with a numerical index; the index is the only way to refer
to an element.

You have the following commands available:
<back />: Navigate the browser back one time
<click id="3" />: Click the element with the given id
<scroll_down />: Scroll one viewport down
<scroll_up />: Scroll one viewport up
<type text="hello" id="3" enter="true|false" />: Type text into the element with the given id; enter defaults to false
<navigate url="https://example.com" />: Navigate to a specific URL
<wait ms="1000" />: Wait before the next observation
<thinking message="..." />: Express a concise, single-line thought
<memorize text="..." />: Save a note that survives for the whole task
<next />: Continue with another action after seeing the result of this one
<done result="..." />: Finish the task and report the outcome

Rules:
- <elements> lists text already extracted for each element id. Use it to decide.
- If the page shows a blocking overlay (cookies, consent), close it first.
- You CANNOT use <scroll_down /> when <browser_state> says you cannot scroll down.
- Use exactly one action command (back, click, scroll, type, navigate, wait) per
  reply. <thinking /> and <memorize /> may accompany it; nothing else may.
- <navigate /> must always be followed by <next /> so you see the result.
- After <thinking /> alone you will receive <next />; then take your action.
- If you made a mistake, use <back /> and try another approach.
- When the task is complete, reply with <done result="..." /> and nothing else.
- Do not respond with anything outside these commands.`

// NudgeToken is the continuation input delivered on the turn after a
// thinking-only reply.
const NudgeToken = "<next />"

// Renderer assembles bounded prompt documents.
type Renderer struct {
	elementCap int
	encoder    *tiktoken.Tiktoken
}

// NewRenderer creates a renderer that truncates element lists beyond
// elementCap entries. Token estimation uses the cl100k_base encoding when
// available and falls back to a bytes/4 heuristic.
func NewRenderer(elementCap int) *Renderer {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Renderer{elementCap: elementCap, encoder: enc}
}

// Render produces the prompt document for one step.
func (r *Renderer) Render(t Turn) PromptContext {
	var b strings.Builder

	if t.FirstTurn {
		b.WriteString("A new task follows. The annotated screenshot and the <elements> list describe the current page; element ids reset on every observation.\n\n")
	}
	fmt.Fprintf(&b, "<task>\n%s\n</task>\n\n", t.Instruction)

	if t.Observation != nil {
		r.writeBrowserState(&b, t.Observation)
		r.writeElements(&b, t.Observation)
	}
	r.writeMemory(&b, t.Memory)
	r.writePageTrail(&b, t.PageTrail)
	r.writeConversation(&b, t.History)

	if t.ExecError != "" {
		fmt.Fprintf(&b, "<error>\nThe previous action failed: %s\nChoose a different action based on the current page.\n</error>\n\n", t.ExecError)
	}

	if t.UserInput != "" {
		fmt.Fprintf(&b, "%s\n", t.UserInput)
	}

	ctx := PromptContext{System: systemPrompt, User: strings.TrimRight(b.String(), "\n")}
	if t.Observation != nil {
		ctx.ImagePNG = t.Observation.Screenshot
	}
	return r.finish(ctx)
}

// Corrective builds the follow-up message after an unparseable reply. One
// corrective retry is attempted before the step fails.
func Corrective(raw string) string {
	return fmt.Sprintf("Your reply could not be parsed as a command:\n%s\n\nRespond with exactly one of the documented commands, e.g. <click id=\"3\" /> or <done result=\"...\" />.", raw)
}

// StepDigest produces the compact observation record appended to the
// conversation history. It deliberately excludes the conversation section so
// history never nests.
func StepDigest(obs *observe.PageObservation, userInput string) string {
	if obs == nil {
		return userInput
	}
	digest := fmt.Sprintf("[page] %s (%s) — %d elements", obs.URL, obs.Title, len(obs.Elements))
	if userInput != "" {
		digest += "\n[user] " + userInput
	}
	return digest
}

func (r *Renderer) writeBrowserState(b *strings.Builder, obs *observe.PageObservation) {
	fmt.Fprintf(b, "<browser_state>\n")
	fmt.Fprintf(b, "Current URL: %s\n", obs.URL)
	fmt.Fprintf(b, "Page title: %s\n", obs.Title)
	fmt.Fprintf(b, "Current scroll position: %dpx\n", obs.Viewport.ScrollY)
	fmt.Fprintf(b, "Maximum scroll height: %dpx\n", obs.Viewport.ScrollHeight)
	fmt.Fprintf(b, "Viewport height: %dpx\n", obs.Viewport.Height)
	fmt.Fprintf(b, "Can scroll down: %t\n", obs.Viewport.CanScrollDown)
	fmt.Fprintf(b, "Can go back: %t\n", obs.Nav.CanGoBack)
	fmt.Fprintf(b, "Can go forward: %t\n", obs.Nav.CanGoForward)
	fmt.Fprintf(b, "</browser_state>\n\n")
}

func (r *Renderer) writeElements(b *strings.Builder, obs *observe.PageObservation) {
	fmt.Fprintf(b, "<elements>\n")
	shown := len(obs.Elements)
	if r.elementCap > 0 && shown > r.elementCap {
		shown = r.elementCap
	}
	for _, el := range obs.Elements[:shown] {
		line := fmt.Sprintf("id: %d [%s]", el.Index, el.Kind)
		if el.Label != "" {
			line += " " + el.Label
		}
		fmt.Fprintf(b, "%s\n", line)
	}
	if omitted := len(obs.Elements) - shown; omitted > 0 {
		fmt.Fprintf(b, "(... %d more elements not shown)\n", omitted)
	}
	fmt.Fprintf(b, "</elements>\n\n")
}

func (r *Renderer) writeMemory(b *strings.Builder, notes []memory.Note) {
	if len(notes) == 0 {
		return
	}
	fmt.Fprintf(b, "<memory>\n")
	for _, n := range notes {
		fmt.Fprintf(b, "- [step %d] %s\n", n.Step, n.Text)
	}
	fmt.Fprintf(b, "</memory>\n\n")
}

func (r *Renderer) writePageTrail(b *strings.Builder, trail []PageVisit) {
	if len(trail) == 0 {
		return
	}
	fmt.Fprintf(b, "<history>\n")
	for _, v := range trail {
		fmt.Fprintf(b, "URL: %s\nTitle: %s\n\n", v.URL, v.Title)
	}
	fmt.Fprintf(b, "</history>\n\n")
}

func (r *Renderer) writeConversation(b *strings.Builder, entries []history.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "<conversation>\n")
	for _, e := range entries {
		switch e.Role {
		case history.RoleMarker:
			fmt.Fprintf(b, "%s\n", e.Content)
		default:
			fmt.Fprintf(b, "[%s] %s\n", e.Role, e.Content)
		}
	}
	fmt.Fprintf(b, "</conversation>\n\n")
}

func (r *Renderer) finish(ctx PromptContext) PromptContext {
	ctx.TokenEstimate = r.estimate(ctx.System) + r.estimate(ctx.User)
	return ctx
}

func (r *Renderer) estimate(s string) int {
	if r.encoder != nil {
		return len(r.encoder.Encode(s, nil, nil))
	}
	return len(s) / 4
}
