package answer

import (
	"fmt"
	"strings"
)

// Request is built once per capture trigger from a transcript snapshot
// and stays immutable for the lifetime of the request.
type Request struct {
	Question        string
	RecentContext   string
	FullTranscript  string
	TemplateID      string
	IsReasoning     bool
	ReasoningEffort string
}

// PromptTemplate shapes how a question and its transcript context turn
// into a system/user prompt pair. Both dual-mode slots share one
// template; only the closing instruction differs.
type PromptTemplate struct {
	ID     string
	System string
}

var templates = map[string]PromptTemplate{
	"interview": {
		ID: "interview",
		System: "You are a real-time interview copilot. The user is mid-conversation " +
			"and needs an answer they can say out loud. Answer in the first person, " +
			"as the candidate. Never mention that you are an AI or that a transcript exists.",
	},
	"sales": {
		ID: "sales",
		System: "You are a real-time call copilot for a sales conversation. Suggest what " +
			"the user should say next: concrete, persuasive, and grounded in what the " +
			"prospect actually said. Answer in the first person.",
	},
	"meeting": {
		ID: "meeting",
		System: "You are a real-time meeting copilot. Help the user respond to what was " +
			"just asked, referencing earlier discussion where it helps. Answer in the " +
			"first person.",
	},
}

const (
	brevityInstruction = "Answer in at most two short sentences. No preamble."

	completenessInstruction = "Give a complete, structured answer. Cover the relevant " +
		"details and give a concrete example where one fits."
)

// templateFor falls back to the interview template for unknown ids so
// a stale settings value never blocks an answer.
func templateFor(id string) PromptTemplate {
	if t, ok := templates[id]; ok {
		return t
	}
	return templates["interview"]
}

// buildUserPrompt lays out transcript context and the question the
// same way for every slot; the per-slot instruction is appended last.
func buildUserPrompt(req Request, instruction string) string {
	var b strings.Builder
	if req.FullTranscript != "" {
		b.WriteString("Full conversation so far:\n")
		b.WriteString(req.FullTranscript)
		b.WriteString("\n")
	}
	if req.RecentContext != "" {
		b.WriteString("Most recent exchange:\n")
		b.WriteString(req.RecentContext)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question to answer:\n%s\n", req.Question)
	if instruction != "" {
		b.WriteString("\n")
		b.WriteString(instruction)
	}
	return b.String()
}
