package services

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

// SyntaxError reports an indentation or key/value shape problem in a template document
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("template syntax error: %s", e.Msg)
	}
	return fmt.Sprintf("template syntax error at line %d: %s (%q)", e.Line, e.Msg, e.Text)
}

func (e *SyntaxError) Unwrap() error {
	return apperr.ErrMalformedInput
}

var scalarNumberPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// docLine is a significant (non-blank, comment-stripped) line of a template document
type docLine struct {
	number int
	indent int
	text   string
	raw    string
}

// templateParser is a recursive-descent reader for the restricted document subset:
// nested maps and sequences by indentation, plus scalars. Anchors, block scalars,
// flow collections and multiple documents are not supported.
type templateParser struct {
	lines []docLine
	index int
}

// ParseTemplateDocument parses a restricted YAML-like document into a generic tree of
// map[string]any, []any, string, float64, bool and nil values.
func ParseTemplateDocument(text string) (any, error) {
	lines, err := preprocessTemplate(text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return map[string]any{}, nil
	}

	p := &templateParser{lines: lines}
	root, err := p.parseNode(lines[0].indent)
	if err != nil {
		return nil, err
	}

	if p.index < len(p.lines) {
		line := p.lines[p.index]
		return nil, &SyntaxError{Line: line.number, Text: line.raw, Msg: "unexpected content after document root"}
	}
	return root, nil
}

func preprocessTemplate(text string) ([]docLine, error) {
	var lines []docLine
	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		indent := 0
		for indent < len(raw) && raw[indent] == ' ' {
			indent++
		}
		content := strings.TrimSpace(stripTemplateComment(raw))
		if content == "" {
			continue
		}
		if indent < len(raw) && raw[indent] == '\t' {
			return nil, &SyntaxError{Line: i + 1, Text: raw, Msg: "tabs are not allowed for indentation"}
		}
		lines = append(lines, docLine{number: i + 1, indent: indent, text: content, raw: raw})
	}
	return lines, nil
}

// stripTemplateComment drops a '#' comment that starts outside a quoted scalar
func stripTemplateComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
				return line[:i]
			}
		}
	}
	return line
}

func (p *templateParser) peek() (docLine, bool) {
	if p.index >= len(p.lines) {
		return docLine{}, false
	}
	return p.lines[p.index], true
}

func (p *templateParser) parseNode(indent int) (any, error) {
	line, ok := p.peek()
	if !ok || line.indent < indent {
		return nil, nil
	}
	if isSequenceEntry(line.text) {
		return p.parseSequence(line.indent)
	}
	obj := map[string]any{}
	if err := p.parseMapInto(obj, line.indent); err != nil {
		return nil, err
	}
	return obj, nil
}

// parseChild reads the nested value of a key whose inline value was empty. The child's
// indentation is whatever the next line uses, provided it is deeper than the parent.
// A sequence at the parent's own indentation is accepted as the compact list style.
func (p *templateParser) parseChild(parentIndent int) (any, error) {
	next, ok := p.peek()
	if !ok {
		return nil, nil
	}
	if next.indent > parentIndent {
		return p.parseNode(next.indent)
	}
	if next.indent == parentIndent && isSequenceEntry(next.text) {
		return p.parseSequence(parentIndent)
	}
	return nil, nil
}

func (p *templateParser) parseMapInto(obj map[string]any, indent int) error {
	for {
		line, ok := p.peek()
		if !ok || line.indent < indent {
			return nil
		}
		if line.indent > indent {
			return &SyntaxError{Line: line.number, Text: line.raw, Msg: fmt.Sprintf("unexpected indentation %d, expected %d", line.indent, indent)}
		}
		if isSequenceEntry(line.text) {
			return nil
		}

		key, value, ok := splitTemplateKeyValue(line.text)
		if !ok {
			return &SyntaxError{Line: line.number, Text: line.raw, Msg: "expected 'key: value'"}
		}
		if _, exists := obj[key]; exists {
			return &SyntaxError{Line: line.number, Text: line.raw, Msg: fmt.Sprintf("duplicate key %q", key)}
		}
		p.index++

		if value == "" {
			child, err := p.parseChild(indent)
			if err != nil {
				return err
			}
			obj[key] = child
			continue
		}
		obj[key] = parseTemplateScalar(value)
	}
}

func (p *templateParser) parseSequence(indent int) ([]any, error) {
	list := []any{}
	for {
		line, ok := p.peek()
		if !ok || line.indent < indent {
			return list, nil
		}
		if line.indent > indent {
			return nil, &SyntaxError{Line: line.number, Text: line.raw, Msg: fmt.Sprintf("unexpected indentation %d, expected %d", line.indent, indent)}
		}
		if !isSequenceEntry(line.text) {
			return list, nil
		}
		p.index++

		rest := line.text[1:]
		payload := strings.TrimLeft(rest, " ")
		if payload == "" {
			child, err := p.parseChild(indent)
			if err != nil {
				return nil, err
			}
			list = append(list, child)
			continue
		}

		key, value, isPair := splitTemplateKeyValue(payload)
		if !isPair {
			list = append(list, parseTemplateScalar(payload))
			continue
		}

		// Sibling keys of an item object line up with the first key after the dash
		contentIndent := indent + 1 + len(rest) - len(payload)
		obj := map[string]any{}
		if value == "" {
			child, err := p.parseChild(contentIndent)
			if err != nil {
				return nil, err
			}
			obj[key] = child
		} else {
			obj[key] = parseTemplateScalar(value)
		}
		if err := p.parseMapInto(obj, contentIndent); err != nil {
			return nil, err
		}
		list = append(list, obj)
	}
}

func isSequenceEntry(text string) bool {
	return text == "-" || strings.HasPrefix(text, "- ")
}

// splitTemplateKeyValue splits "key: value" on the first colon that is followed by a
// space or ends the line, so URLs in values survive.
func splitTemplateKeyValue(text string) (string, string, bool) {
	if text == "" || text[0] == ':' || text[0] == '-' {
		return "", "", false
	}
	var quote byte
	for i := 0; i < len(text); i++ {
		switch {
		case quote != 0:
			if text[i] == quote {
				quote = 0
			}
			continue
		case text[i] == '"' || text[i] == '\'':
			quote = text[i]
			continue
		case text[i] != ':':
			continue
		}
		if i == len(text)-1 || text[i+1] == ' ' {
			key := unquoteTemplateScalar(strings.TrimSpace(text[:i]))
			if key == "" {
				return "", "", false
			}
			return key, strings.TrimSpace(text[i+1:]), true
		}
	}
	return "", "", false
}

func unquoteTemplateScalar(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

func parseTemplateScalar(value string) any {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return trimmed[1 : len(trimmed)-1]
		}
	}
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if scalarNumberPattern.MatchString(trimmed) {
		if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return number
		}
	}
	return trimmed
}

// EncodeTemplateDocument renders a tree in the canonical form read by
// ParseTemplateDocument: two-space indentation, sorted keys, quoted ambiguous strings.
func EncodeTemplateDocument(tree any) (string, error) {
	var b strings.Builder
	switch node := tree.(type) {
	case map[string]any:
		if err := encodeTemplateMap(&b, node, 0); err != nil {
			return "", err
		}
	case []any:
		if err := encodeTemplateSequence(&b, node, 0); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("document root must be a map or a sequence, got %T", tree)
	}
	return b.String(), nil
}

func encodeTemplateMap(b *strings.Builder, obj map[string]any, indent int) error {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := encodeTemplateEntry(b, strings.Repeat(" ", indent)+key+":", obj[key], indent); err != nil {
			return err
		}
	}
	return nil
}

// encodeTemplateEntry writes prefix followed by an inline scalar or a nested block
// indented one step deeper than indent.
func encodeTemplateEntry(b *strings.Builder, prefix string, value any, indent int) error {
	switch child := value.(type) {
	case map[string]any:
		if len(child) == 0 {
			return fmt.Errorf("empty maps cannot be encoded")
		}
		b.WriteString(prefix + "\n")
		return encodeTemplateMap(b, child, indent+2)
	case []any:
		if len(child) == 0 {
			return fmt.Errorf("empty sequences cannot be encoded")
		}
		b.WriteString(prefix + "\n")
		return encodeTemplateSequence(b, child, indent+2)
	default:
		scalar, err := encodeTemplateScalar(value)
		if err != nil {
			return err
		}
		b.WriteString(prefix + " " + scalar + "\n")
		return nil
	}
}

func encodeTemplateSequence(b *strings.Builder, list []any, indent int) error {
	pad := strings.Repeat(" ", indent)
	for _, item := range list {
		obj, isMap := item.(map[string]any)
		if !isMap || len(obj) == 0 {
			if err := encodeTemplateEntry(b, pad+"-", item, indent); err != nil {
				return err
			}
			continue
		}

		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for i, key := range keys {
			prefix := pad + "  " + key + ":"
			if i == 0 {
				prefix = pad + "- " + key + ":"
			}
			if err := encodeTemplateEntry(b, prefix, obj[key], indent+2); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeTemplateScalar(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("non-finite number %v cannot be encoded", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case string:
		return quoteTemplateString(v)
	default:
		return "", fmt.Errorf("unsupported scalar type %T", value)
	}
}

func quoteTemplateString(value string) (string, error) {
	if strings.ContainsAny(value, "\n\r") {
		return "", fmt.Errorf("multiline strings cannot be encoded")
	}
	plain, isString := parseTemplateScalar(value).(string)
	needsQuotes := !isString || plain != value ||
		value == "" ||
		strings.Contains(value, ": ") || strings.HasSuffix(value, ":") ||
		strings.Contains(value, "#") ||
		strings.HasPrefix(value, "-") ||
		strings.ContainsAny(value[:1], "\"'")
	if !needsQuotes {
		return value, nil
	}
	if !strings.Contains(value, `"`) {
		return `"` + value + `"`, nil
	}
	if !strings.Contains(value, "'") {
		return "'" + value + "'", nil
	}
	return "", fmt.Errorf("string %q mixes both quote characters", value)
}

// ParseOrderFile reads an order template, dispatching on the file extension:
// .json goes through encoding/json, .yaml/.yml through the restricted parser and
// .txt/.md through the order list parser.
func ParseOrderFile(path string) (*models.OrderTemplate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order file: %w", err)
	}
	return ParseOrderDocument(string(content), filepath.Ext(path))
}

// ParseOrderDocument parses template content in the format named by ext
func ParseOrderDocument(content, ext string) (*models.OrderTemplate, error) {
	var tree any
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		if err := json.Unmarshal([]byte(content), &tree); err != nil {
			return nil, fmt.Errorf("invalid JSON order template: %v: %w", err, apperr.ErrMalformedInput)
		}
	case "yaml", "yml":
		parsed, err := ParseTemplateDocument(content)
		if err != nil {
			return nil, err
		}
		tree = parsed
	case "txt", "md":
		return NewOrderListParser().Parse(content)
	default:
		return nil, fmt.Errorf("unsupported order file extension %q, use .json, .yaml, .yml, .txt or .md: %w", ext, apperr.ErrMalformedInput)
	}
	return DecodeOrderTemplate(tree)
}

// DecodeOrderTemplate converts a generic document tree into a validated OrderTemplate
func DecodeOrderTemplate(tree any) (*models.OrderTemplate, error) {
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, &ValidationError{Field: "", Msg: "order template must be an object"}
	}

	template := &models.OrderTemplate{}
	var err error
	if template.RestaurantURL, err = optionalString(root, "restaurantUrl"); err != nil {
		return nil, err
	}
	if template.RestaurantName, err = optionalString(root, "restaurantName"); err != nil {
		return nil, err
	}
	if template.Currency, err = optionalString(root, "currency"); err != nil {
		return nil, err
	}

	rawItems, ok := root["items"].([]any)
	if !ok || len(rawItems) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "order template must include a non-empty items list"}
	}

	for index, rawItem := range rawItems {
		entry, ok := rawItem.(map[string]any)
		if !ok {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d]", index), Msg: "item must be an object"}
		}
		line, err := decodeOrderLine(entry, index)
		if err != nil {
			return nil, err
		}
		template.Items = append(template.Items, line)
	}

	if err := Validate(template); err != nil {
		return nil, err
	}
	return template, nil
}

func decodeOrderLine(entry map[string]any, index int) (models.OrderLine, error) {
	field := fmt.Sprintf("items[%d]", index)

	name, ok := entry["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return models.OrderLine{}, &ValidationError{Field: field + ".name", Msg: "item is missing a valid name"}
	}
	line := models.OrderLine{Name: strings.TrimSpace(name)}

	if raw, present := entry["quantity"]; present && raw != nil {
		quantity, ok := raw.(float64)
		if !ok || quantity != math.Trunc(quantity) || quantity <= 0 || quantity > math.MaxInt32 {
			return models.OrderLine{}, &ValidationError{Field: field + ".quantity", Msg: fmt.Sprintf("item %q has invalid quantity", line.Name)}
		}
		line.Quantity = int(quantity)
	}

	switch notes := entry["notes"].(type) {
	case nil:
	case string:
		line.Notes = notes
	default:
		line.Notes = fmt.Sprint(notes)
	}

	switch options := entry["options"].(type) {
	case nil:
	case []any:
		line.Options = options
	default:
		return models.OrderLine{}, &ValidationError{Field: field + ".options", Msg: "options must be a list"}
	}
	return line, nil
}

func optionalString(root map[string]any, key string) (string, error) {
	switch v := root[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", &ValidationError{Field: key, Msg: "must be a string"}
	}
}
