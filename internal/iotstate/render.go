package iotstate

import (
	"fmt"
	"strings"
	"text/template"
)

// stateQueryTemplate is the response template for state queries,
// looked up by name in the embedded template set.
const stateQueryTemplate = "state_query.tmpl"

// templateFuncs are the helpers available inside response templates.
var templateFuncs = template.FuncMap{
	// speakRoom converts a stored room name back to speech form
	// ("living_room" → "living room").
	"speakRoom": func(room string) string {
		return strings.ReplaceAll(room, "_", " ")
	},
	"stateWord": func(open bool) string {
		if open {
			return "open"
		}
		return "closed"
	},
	"joinList": func(items []string) string {
		return strings.Join(items, ", ")
	},
}

// Renderer formats device-state query results into natural-language
// sentences. It is side-effect free and safe for concurrent use.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded template set.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("responses").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse response templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// stateQueryData is the input to the state_query template.
type stateQueryData struct {
	Rooms  []string
	Filter StateFilter
	States []DeviceState
}

// StateQuery renders one sentence per device state, or a fixed
// "no entries" sentence when states is empty. The requested rooms are
// only mentioned in the empty case, so the user hears what was
// searched.
func (r *Renderer) StateQuery(params Parameters, states []DeviceState) (string, error) {
	var sb strings.Builder
	data := stateQueryData{
		Rooms:  params.Rooms,
		Filter: params.StateFilter,
		States: states,
	}
	if err := r.templates.ExecuteTemplate(&sb, stateQueryTemplate, data); err != nil {
		return "", fmt.Errorf("render state query response: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
