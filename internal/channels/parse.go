package channels

import (
	"strings"

	"github.com/estudolab/estudai/internal/mcp"
)

// StudyAgentID is the target stamped on the built-in study commands. The
// binding policy handles everything else.
const StudyAgentID = "estudos"

// studyCommands maps each built-in command to its parameter key ("" for
// commands without arguments).
var studyCommands = map[string]string{
	"start":     "",
	"resumo":    "topico",
	"quiz":      "topico",
	"responder": "respostas",
}

// ParseText translates one line of chat text into an envelope, the same way
// on every text channel. "/cmd args" becomes a command: the built-in study
// commands are addressed to the study agent with their parameter filled from
// args; unknown commands carry {"text": args} and no target, leaving the
// choice to the routing policy. Anything else becomes a query.
//
// msgContext becomes the envelope context; its "user_id" (when a string)
// becomes the envelope user id.
func ParseText(source, text string, msgContext map[string]any) *mcp.Message {
	text = strings.TrimSpace(text)

	var msg *mcp.Message
	if strings.HasPrefix(text, "/") {
		name, args := splitCommand(text)
		if paramKey, known := studyCommands[name]; known {
			params := map[string]any{}
			if paramKey != "" {
				params[paramKey] = args
			}
			msg = mcp.NewCommand(source, name, params)
			msg.Target = StudyAgentID
		} else {
			msg = mcp.NewCommand(source, name, map[string]any{"text": args})
		}
	} else {
		msg = mcp.NewQuery(source, text)
	}

	if msgContext != nil {
		msg.Context = msgContext
		if uid, ok := msgContext["user_id"].(string); ok {
			msg.UserID = uid
		}
	}
	return msg
}

// splitCommand splits "/resumo HTTP basics" into ("resumo", "HTTP basics").
// A "@botname" suffix on the command (Telegram group syntax) is dropped.
func splitCommand(text string) (name, args string) {
	name = strings.TrimPrefix(text, "/")
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name, args = name[:i], strings.TrimSpace(name[i+1:])
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, args
}
