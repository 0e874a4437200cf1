package prompts

import "strings"

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"
	// ThinkDirective asks Qwen3 to reason before answering.
	ThinkDirective = "/think"
)

// ChatML renders a single-turn system/user prompt and opens the assistant
// turn. With think set, the assistant turn starts with the reasoning directive.
// user is embedded verbatim.
func ChatML(system, user string, think bool) string {
	var b strings.Builder
	b.Grow(len(system) + len(user) + 96)

	b.WriteString(imStart + "system\n")
	b.WriteString(system)
	b.WriteString("\n" + imEnd + "\n")

	b.WriteString(imStart + "user\n")
	b.WriteString(user)
	b.WriteString("\n" + imEnd + "\n")

	b.WriteString(imStart + "assistant\n")
	if think {
		b.WriteString(ThinkDirective + "\n")
	}
	return b.String()
}
