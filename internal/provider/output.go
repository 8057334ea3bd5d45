package provider

import (
	"encoding/json"
	"strings"
)

// OutputKind tags an Output variant.
type OutputKind string

// Output kinds.
const (
	OutputText        OutputKind = "text"
	OutputImage       OutputKind = "image"
	OutputInfographic OutputKind = "infographic"
)

// Output is the closed set of generated payloads: Text, Image and Infographic.
type Output interface {
	Kind() OutputKind
	// Content is the body stored on a message.
	Content() string
	// Fields is the structured payload persisted alongside it.
	Fields() map[string]any
	isOutput()
}

// Text is generated prose.
type Text struct {
	Body string
}

// Kind implements Output.
func (Text) Kind() OutputKind { return OutputText }

// Content implements Output.
func (t Text) Content() string { return t.Body }

// Fields implements Output.
func (t Text) Fields() map[string]any { return map[string]any{"kind": string(OutputText)} }

func (Text) isOutput() {}

// Image is a generated picture.
type Image struct {
	URL           string
	MimeType      string
	Width         int
	Height        int
	RevisedPrompt string
}

// Kind implements Output.
func (Image) Kind() OutputKind { return OutputImage }

// Content implements Output.
func (i Image) Content() string { return i.URL }

// Fields implements Output.
func (i Image) Fields() map[string]any {
	out := map[string]any{"kind": string(OutputImage), "url": i.URL}
	if i.MimeType != "" {
		out["mime_type"] = i.MimeType
	}
	if i.Width > 0 && i.Height > 0 {
		out["width"] = i.Width
		out["height"] = i.Height
	}
	if i.RevisedPrompt != "" {
		out["revised_prompt"] = i.RevisedPrompt
	}
	return out
}

func (Image) isOutput() {}

// InfographicSection is one panel of an infographic.
type InfographicSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Infographic is a structured visual summary.
type Infographic struct {
	Title    string
	Sections []InfographicSection
	ImageURL string
}

// Kind implements Output.
func (Infographic) Kind() OutputKind { return OutputInfographic }

// Content renders the infographic as plain text.
func (g Infographic) Content() string {
	var b strings.Builder
	b.WriteString(g.Title)
	for _, s := range g.Sections {
		b.WriteString("\n\n")
		b.WriteString(s.Heading)
		b.WriteString("\n")
		b.WriteString(s.Body)
	}
	return strings.TrimSpace(b.String())
}

// Fields implements Output.
func (g Infographic) Fields() map[string]any {
	sections := make([]map[string]any, 0, len(g.Sections))
	for _, s := range g.Sections {
		sections = append(sections, map[string]any{"heading": s.Heading, "body": s.Body})
	}
	out := map[string]any{"kind": string(OutputInfographic), "title": g.Title, "sections": sections}
	if g.ImageURL != "" {
		out["image_url"] = g.ImageURL
	}
	return out
}

func (Infographic) isOutput() {}

// MarshalOutput encodes an Output with its kind tag.
func MarshalOutput(o Output) ([]byte, error) {
	fields := o.Fields()
	fields["content"] = o.Content()
	return json.Marshal(fields)
}
