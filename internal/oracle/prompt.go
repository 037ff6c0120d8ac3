package oracle

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/GreenD93/mcp-project/internal/tool"
)

// DefaultRole is used when an agent declares neither role text nor a
// description.
const DefaultRole = "An expert who solves problems by choosing the right tool."

// Role picks the role text for an agent: its declared role, else its
// description, else DefaultRole.
func Role(declared, description string) string {
	if s := strings.TrimSpace(declared); s != "" {
		return s
	}
	if s := strings.TrimSpace(description); s != "" {
		return s
	}
	return DefaultRole
}

// AgentBrief is the projection of an agent shown to the router. It never
// carries the full descriptor.
type AgentBrief struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Prompt is a system/user message pair sent for generation.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// String renders the pair the way it is recorded in a trace.
func (p Prompt) String() string {
	return "[system]\n" + p.System + "\n\n[user]\n" + p.User
}

var templates = template.Must(template.New("oracle").Funcs(template.FuncMap{
	"json": toJSON,
}).Parse(`
{{define "agent"}}Latest user input: "{{.UserText}}"

Available agents (summary):
{{json .Agents}}

Pick the single agent best suited to handle this request, using its exact name.

Answer with JSON only, no code fences:
{
  "route": "AGENT",
  "agent_name": "<selected agent name>",
  "reason": "why this agent was chosen"
}{{end}}

{{define "tool"}}Role: {{.Role}}

User input: "{{.UserText}}"

Available tools:
{{json .Tools}}

Decide whether one of these tools fits the request and, if so, which tool to call with which arguments.
Give the reason for your choice in one or two sentences.

Answer with exactly one of the following, as JSON only, no code fences:

1) The tool can be called:
{
  "route": "TOOL",
  "mcp": "<server name>",
  "tool_name": "<tool name>",
  "arguments": { <argument key: value> },
  "reason": "why this tool was chosen"
}

2) A tool fits but required arguments cannot be determined from the input:
{
  "route": "TOOL_INCOMPLETE",
  "reason": "which information is missing"
}

3) No tool fits, answer directly:
{
  "route": "DIRECT",
  "reason": "why no tool is used"
}{{end}}

{{define "direct"}}Answer the user's request with your own insight and knowledge.
Request: {{.UserText}}{{end}}

{{define "incomplete"}}A tool could handle this request, but some required details are missing: {{.Reason}}
Explain briefly what is missing and ask the user to provide it.
Request: {{.UserText}}{{end}}

{{define "summary"}}Using the reference data below, summarize the key information and results for the request.
Request: {{.UserText}}

Reference data ({{.Server}}/{{.Tool}}):
{{.Data}}{{end}}

{{define "failure"}}The tool call needed for this request failed ({{.Reason}}).
Apologize briefly, say that live data is unavailable right now, and answer as well as you can from general knowledge.
Request: {{.UserText}}{{end}}
`))

func toJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func render(name string, data any) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		// Templates are static and their inputs are plain values.
		panic("oracle: rendering " + name + ": " + err.Error())
	}
	return b.String()
}

// AgentSelectionPrompt builds the router prompt.
func AgentSelectionPrompt(userText string, agents []AgentBrief) string {
	if agents == nil {
		agents = []AgentBrief{}
	}
	return render("agent", struct {
		UserText string
		Agents   []AgentBrief
	}{userText, agents})
}

// ToolSelectionPrompt builds the tool-selection prompt from the agent's role
// and the flat tool list of its registry.
func ToolSelectionPrompt(role, userText string, tools []tool.PromptTool) string {
	if tools == nil {
		tools = []tool.PromptTool{}
	}
	return render("tool", struct {
		Role     string
		UserText string
		Tools    []tool.PromptTool
	}{role, userText, tools})
}

type genData struct {
	UserText, Reason, Server, Tool, Data string
}

// DirectPrompt asks for an answer without tool data.
func DirectPrompt(role, userText string) Prompt {
	return Prompt{System: role, User: render("direct", genData{UserText: userText})}
}

// IncompletePrompt asks the model to request the missing details.
func IncompletePrompt(role, userText, reason string) Prompt {
	return Prompt{System: role, User: render("incomplete", genData{UserText: userText, Reason: reason})}
}

// SummaryPrompt grounds the answer in a tool result.
func SummaryPrompt(role, userText, server, toolName, data string) Prompt {
	return Prompt{System: role, User: render("summary", genData{
		UserText: userText, Server: server, Tool: toolName, Data: data,
	})}
}

// FailurePrompt asks for an apologetic answer after a failed tool call.
func FailurePrompt(role, userText, reason string) Prompt {
	return Prompt{System: role, User: render("failure", genData{UserText: userText, Reason: reason})}
}
