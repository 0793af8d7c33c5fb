package agent

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/troupe-ai/troupe/pkg/protocol"
)

//go:embed prompts/persona.tmpl
var systemPromptTemplate string

var promptTmpl = template.Must(template.New("persona").Parse(systemPromptTemplate))

type promptData struct {
	ActionsDefinitions string
	ActionsConstraints string
	PersonaBlock       string
}

// systemPrompt renders the system message from the persona and the
// attached faculties.
func (a *Agent) systemPrompt() (string, error) {
	persona, err := json.MarshalIndent(a.config, "", "  ")
	if err != nil {
		return "", err
	}

	var definitions, constraints []string
	for _, f := range a.faculties {
		if d := strings.TrimSpace(f.ActionsDefinitions()); d != "" {
			definitions = append(definitions, d)
		}
		if c := strings.TrimSpace(f.ActionsConstraints()); c != "" {
			constraints = append(constraints, c)
		}
	}

	var buf bytes.Buffer
	err = promptTmpl.Execute(&buf, promptData{
		ActionsDefinitions: joinIndented(definitions),
		ActionsConstraints: joinIndented(constraints),
		PersonaBlock:       string(persona),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func joinIndented(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, line := range strings.Split(p, "\n") {
			out = append(out, "  "+strings.TrimRight(line, " "))
		}
	}
	return strings.Join(out, "\n")
}

// resetPrompt re-renders the system message and rebuilds the chat
// history from the episodic context window. Called after any persona
// change.
func (a *Agent) resetPrompt() {
	system, err := a.systemPrompt()
	if err != nil {
		// The persona is always JSON-encodable; template execution over
		// static text cannot fail at runtime either.
		panic(err)
	}

	messages := []protocol.Message{{Role: "system", Content: system}}
	for _, event := range a.episodic.RetrieveRecent(true) {
		messages = append(messages, eventMessage(event))
	}
	a.currentMessages = messages
}

// eventMessage converts an episodic event into a chat message. The
// event content travels as JSON so the model sees structured stimuli
// and actions.
func eventMessage(event protocol.Event) protocol.Message {
	data, err := json.Marshal(event.Content)
	if err != nil {
		data = []byte(`{}`)
	}
	return protocol.Message{Role: event.Role, Content: string(data)}
}
