// Package rendertemplate implements C2: rendering a notification template
// body against an event's payload.
//
// The original implementation sandboxes Jinja2 (which can execute arbitrary
// expressions) with jinja2.sandbox.SandboxedEnvironment and StrictUndefined.
// Go's html/template has no equivalent SSTI surface to sandbox in the first
// place — template actions can only call html/template's fixed built-in
// functions (print, len, index, ...), functions registered through Funcs,
// and methods of the values passed in, never host runtime builtins — so the
// renderer registers no functions of its own, passes only string values,
// and relies on html/template's own autoescaping.
// Strict-undefined behavior is reproduced with Option("missingkey=error").
package rendertemplate

import (
	"bytes"
	"fmt"
	"html/template"
)

// Renderer renders notification template bodies against string-keyed
// context maps (domainevent.Event.PayloadMap output, spec.md §4.7 step 3).
type Renderer struct{}

// New builds a Renderer. It has no state; templates are parsed per call
// since template bodies come from the store and change at runtime.
func New() *Renderer {
	return &Renderer{}
}

// Render parses body as a Go template and executes it against context.
// Any key referenced in the template that is absent from context causes an
// error, the Go analogue of Jinja2's StrictUndefined. Every context value is
// converted to its string form before the template is executed.
func (r *Renderer) Render(name, body string, context map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	strContext := make(map[string]interface{}, len(context))
	for k, v := range context {
		strContext[k] = fmt.Sprint(v)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, strContext); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}
