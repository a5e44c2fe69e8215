package summarizer

import "fmt"

// SectionHeaders are the six labelled sections every summary carries, in order.
var SectionHeaders = []string{
	"Call Purpose:",
	"Key Discussion Points:",
	"Customer Concerns:",
	"Agent Response:",
	"Final Outcome:",
	"Follow-up Required:",
}

// requiredHeader must appear in generated output for it to be accepted.
const requiredHeader = "Call Purpose:"

const promptTemplate = `You are an enterprise call analysis AI.

STRICT RULES:
- Do NOT invent information
- ONLY use facts present in the transcript
- Be concise and professional
- Use bullet points
- No filler text

OUTPUT FORMAT (MANDATORY):

Call Purpose:
- <one clear sentence>

Key Discussion Points:
- <point 1>
- <point 2>
- <point 3>

Customer Concerns:
- <concern or 'No major concerns expressed'>

Agent Response:
- <actions taken by agent>

Final Outcome:
- <result of the call>

Follow-up Required:
- <Yes/No + brief detail>

Transcript:
%s
`

// BuildPrompt renders the instruction template around a transcript.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, transcript)
}
