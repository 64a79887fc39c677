package ai

import (
	"context"
	"strings"
)

// SystemPrompt frames every request as veterinary blood work interpretation.
const SystemPrompt = `You are an expert veterinary pathologist specializing in canine blood work analysis.
Your role is to provide detailed, accurate interpretations of dog blood test results.

When analyzing blood tests, always:
1. Identify each parameter and its reference range
2. Highlight any abnormal values (high/low)
3. Explain the clinical significance of abnormal findings
4. Suggest potential causes for abnormalities
5. Recommend follow-up actions if needed
6. Use clear, professional language that pet owners can understand

Always include a disclaimer that this analysis is for educational purposes and should not replace professional veterinary consultation.`

// Completer is the transport the Analyst needs; *Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Analyst turns extracted lab text (and an optional follow-up question)
// into a model prompt.
type Analyst struct {
	llm Completer
}

// NewAnalyst wraps a Completer.
func NewAnalyst(llm Completer) *Analyst { return &Analyst{llm: llm} }

// Analyze interprets testText. A blank question requests a full analysis;
// otherwise the question is answered in the context of the results.
func (a *Analyst) Analyze(ctx context.Context, testText, question string) (string, error) {
	return a.llm.Complete(ctx, SystemPrompt, BuildPrompt(testText, question))
}

// BuildPrompt renders the user turn.
func BuildPrompt(testText, question string) string {
	if q := strings.TrimSpace(question); q != "" {
		return "Here are the blood test results:\n\n" + testText + "\n\nSpecific question: " + q
	}
	return "Please analyze these dog blood test results:\n\n" + testText
}
