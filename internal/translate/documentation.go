package translate

import "strings"

// DisplayPart is tsserver's SymbolDisplayPart: a span of text tagged with a
// semantic kind ("text", "link", "linkName", "linkText", "keyword", ...).
type DisplayPart struct {
	Text string
	Kind string
}

// JSDocTagInfo is one parsed JSDoc tag (tsserver's JSDocTagInfo), e.g.
// {name: "param", text: [{text: "name"}, {text: " the thing"}]}.
type JSDocTagInfo struct {
	Name string
	Text []DisplayPart
}

// RenderDisplayParts concatenates parts verbatim, used for the signature
// line of a hover (wrapped by the caller in a ```ts fence).
func RenderDisplayParts(parts []DisplayPart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// RenderDocumentation renders tsserver's documentation display-part array to
// CommonMark: {@link url [text]} and {@linkcode ...} become
// Markdown links (monospace for linkcode).
func RenderDocumentation(parts []DisplayPart) string {
	var b strings.Builder
	i := 0
	for i < len(parts) {
		p := parts[i]
		if p.Kind == "link" && (p.Text == "{@link " || p.Text == "{@linkcode ") {
			code := p.Text == "{@linkcode "
			link, consumed := renderLink(parts[i:], code)
			b.WriteString(link)
			i += consumed
			continue
		}
		b.WriteString(p.Text)
		i++
	}
	return b.String()
}

// renderLink consumes a {@link ...} / {@linkcode ...} run starting at
// parts[0] (whose Kind=="link", Text=="{@link "/"{@linkcode ") and returns
// its Markdown rendering plus how many parts were consumed.
func renderLink(parts []DisplayPart, code bool) (string, int) {
	var url, label string
	i := 1
	for ; i < len(parts); i++ {
		p := parts[i]
		if p.Kind == "link" && p.Text == "}" {
			i++
			break
		}
		switch p.Kind {
		case "linkName":
			url = p.Text
		case "linkText":
			label = strings.TrimSpace(p.Text)
		default:
			if url == "" {
				url = strings.TrimSpace(p.Text)
			} else if label == "" {
				label = strings.TrimSpace(p.Text)
			}
		}
	}
	if label == "" {
		label = url
	}
	if code {
		label = "`" + label + "`"
	}
	return "[" + label + "](" + url + ")", i
}

// RenderTag renders one JSDoc tag: @param becomes
// "*@param* `name` — desc"; @example blocks are fenced unless they already
// contain a fence or a <caption> with a fence; any other tag falls back to
// "*@name* text".
func RenderTag(tag JSDocTagInfo) string {
	text := RenderDisplayParts(tag.Text)
	switch tag.Name {
	case "param":
		name, desc := splitParamText(text)
		if desc != "" {
			return "*@param* `" + name + "` — " + desc
		}
		return "*@param* `" + name + "`"
	case "example":
		return renderExample(text)
	default:
		if text == "" {
			return "*@" + tag.Name + "*"
		}
		return "*@" + tag.Name + "* " + text
	}
}

// splitParamText splits "name - desc"/"name desc" produced by tsserver's
// JSDoc tag parser into its name and description.
func splitParamText(text string) (name, desc string) {
	text = strings.TrimSpace(text)
	fields := strings.SplitN(text, " ", 2)
	name = fields[0]
	if len(fields) == 2 {
		desc = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fields[1]), "- "))
	}
	return name, desc
}

func renderExample(text string) string {
	if strings.Contains(text, "```") {
		return text
	}
	return "```ts\n" + strings.TrimSpace(text) + "\n```"
}
