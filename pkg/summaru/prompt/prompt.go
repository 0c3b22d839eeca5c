// Package prompt assembles the fixed prompts sent to the generation models.
// The transforms are deliberately simple and deterministic; all tuning
// lives in the instruction constants.
package prompt

import "strings"

// SummarizeSystemInstruction defines the assistant's behavior for the
// /summarize command.
const SummarizeSystemInstruction = `You are a sharp and witty (but not cheesy) assistant that summarizes Discord chat conversations. Present the summary as a bulleted list.
Create a clear, scannable bulleted list of the key topics, events and memorable moments. Start each list item with a short (couple words) bolded title followed by a colon.
You are versatile so you can adapt to any User Instructions. When wanting to refer to a specific user, use their name instead of vauge words like 'someone' or 'a user'.
If asked for personal opinions, thoughts or similar things, express actual opinions. In essence make sure to have a personality.
**Do not cite conversation timestamps, they are for your understanding only**. Use clean formatting. Don't use tables for formatting, they are not supported in discord embeds.


**IMPORTANT: Produce short and to-the-point responses. Do not include any preamble before the response. The goal is to efficiently condense the conversation.
This also means the length of the response should be relative to the length of the chat and always condense it significantly. Never exceed a one-minute read.
User attention is fickle so you must aim for maximum information and engagement per word.**`

// AskSystemInstruction defines the assistant's behavior for the /ask command.
const AskSystemInstruction = `You are a sharp and witty (but not cheesy) Discord assistant. Your task is to answer the user's request using the provided conversation as context.
When responding, take the provided conversation into account but don't limit yourself to it - also draw on your broader knowledge and creativity.
Also use your own knowledge and judgement when answering requests that are not strictly about the provided conversation, or if there is no conversation.
You can search the web when appropriate. Maintain a conversational tone. Express yourself freely.
If asked for personal opinions, thoughts or similar things, express actual opinions. In essence make sure to have a personality.
**Do not cite conversation timestamps, they are for your understanding only**.
Use clean formatting. Don't use tables for formatting, they are not supported in discord embeds. **Prioritize short and to-the-point responses.**`

const historyPreamble = "**Timezone:** All message timestamps are in the UTC timezone.\n" +
	"**Format:** The conversation is grouped by day. Each day begins with a header like `--- YYYY-MM-DD ---`. The messages themselves are formatted as `HH:MM Username: Message Content`."

// Summarize builds the /summarize prompt around the formatted history and
// optional user instructions.
func Summarize(formattedHistory, customInstructions string) string {
	var b strings.Builder
	b.WriteString("Please summarize the following discord conversation.\n")

	if customInstructions != "" {
		b.WriteString("\n**User Instructions (Follow these carefully):** ")
		b.WriteString(customInstructions)
	}
	b.WriteString("\n")

	if formattedHistory != "" {
		b.WriteString(historyPreamble)
		b.WriteString("\n\n**Conversation:**\n---\n")
		b.WriteString(formattedHistory)
		b.WriteString("\n---")
	} else {
		b.WriteString("**No conversation history was provided to summarize.**")
	}
	return b.String()
}

// Ask builds the /ask prompt around the user's request and the formatted
// history, which may be empty for the no-context mode.
func Ask(formattedHistory, userRequest string) string {
	var b strings.Builder
	b.WriteString("Please answer the user's request.\n\n**User's request:**\n---\n")
	b.WriteString(userRequest)
	b.WriteString("\n---\n\n")

	if formattedHistory != "" {
		b.WriteString("Use the following conversation as context if relevant.\n")
		b.WriteString(historyPreamble)
		b.WriteString("\n\n**Conversation:**\n---\n")
		b.WriteString(formattedHistory)
		b.WriteString("\n---")
	} else {
		b.WriteString("**No conversation was provided as context for this request.**")
	}
	return b.String()
}
