// Package prompts holds the instructions sent to the model.
//
// Prompt text is Go code rather than config because templates take
// interpolated values and can be checked by tests. Deployments that
// want different wording point agent.system_prompt_file at their own
// text instead.
package prompts
