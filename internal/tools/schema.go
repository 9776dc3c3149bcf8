package tools

// Helpers for the JSON Schema fragments in tool parameters.

func object(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func str(desc string) map[string]any {
	s := map[string]any{"type": "string"}
	if desc != "" {
		s["description"] = desc
	}
	return s
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

const ownerRepoDesc = "Repository in owner/name form"
