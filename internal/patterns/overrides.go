package patterns

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrMalformedOverride is returned when an override document, or one section
// inside it, matches neither accepted shape.
var ErrMalformedOverride = errors.New("malformed pattern override")

// Shape identifies which of the two accepted override layouts a document uses.
type Shape string

const (
	// ShapeCurrent nests {start, end} under every section and uses
	// questions/answerKeys/explanations as view keys.
	ShapeCurrent Shape = "current"
	// ShapeLegacy lists start markers per section directly, keeps end markers
	// in a parallel endMarkers map, and puts answer-key sections under answers.
	ShapeLegacy Shape = "legacy"
)

// Override document keys.
const (
	keyQuestions    = "questions"
	keyAnswerKeys   = "answerKeys"
	keyExplanations = "explanations"
	keyLegacyAnswer = "answers"
	keyEndMarkers   = "endMarkers"
	keySectionStart = "sectionStart"
	keyLegacyRegion = "answerKey"
	keyStart        = "start"
	keyEnd          = "end"
)

//go:embed schemas/overrides.schema.json
var schemaFS embed.FS

var (
	overrideSchemaOnce sync.Once
	overrideSchema     *jsonschema.Schema
	overrideSchemaErr  error
)

func compiledOverrideSchema() (*jsonschema.Schema, error) {
	overrideSchemaOnce.Do(func() {
		raw, err := schemaFS.ReadFile("schemas/overrides.schema.json")
		if err != nil {
			overrideSchemaErr = fmt.Errorf("failed to read override schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("overrides.schema.json", bytes.NewReader(raw)); err != nil {
			overrideSchemaErr = fmt.Errorf("failed to load override schema: %w", err)
			return
		}
		overrideSchema, overrideSchemaErr = compiler.Compile("overrides.schema.json")
	})
	return overrideSchema, overrideSchemaErr
}

// OverrideDocument is a decoded, schema-checked override document whose
// layout has been identified. Adapt turns it into a Set.
type OverrideDocument struct {
	Shape Shape
	raw   map[string]any
}

// ParseOverrides decodes a JSON or YAML override document, validates its
// outer structure, and identifies its shape. Per-section problems are left
// for Adapt so one bad section does not discard the rest.
func ParseOverrides(data []byte) (*OverrideDocument, error) {
	var decoded any
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &OverrideDocument{Shape: ShapeCurrent, raw: map[string]any{}}, nil
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOverride, err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOverride, err)
		}
	}
	return NewOverrideDocument(decoded)
}

// LoadOverridesFile reads and parses an override document from disk.
func LoadOverridesFile(path string) (*OverrideDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}
	doc, err := ParseOverrides(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// NewOverrideDocument validates an already-decoded value, such as the
// customPatterns field of an HTTP request.
func NewOverrideDocument(decoded any) (*OverrideDocument, error) {
	normalized, err := normalizeJSON(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOverride, err)
	}
	root, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document must be an object, got %T", ErrMalformedOverride, normalized)
	}

	schema, err := compiledOverrideSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOverride, err)
	}

	return &OverrideDocument{Shape: sniffShape(root), raw: root}, nil
}

// sniffShape picks the layout from the first question section that matches
// either shape. The current shape wins when that section is an object
// carrying a start key. Sections matching neither shape do not decide the
// layout; Adapt reports them one by one.
func sniffShape(root map[string]any) Shape {
	questions, _ := root[keyQuestions].(map[string]any)
	for _, sec := range Sections {
		switch t := questions[string(sec)].(type) {
		case map[string]any:
			if _, has := t[keyStart]; has {
				return ShapeCurrent
			}
		case []any, string:
			return ShapeLegacy
		}
	}

	if _, ok := root[keyLegacyAnswer]; ok {
		return ShapeLegacy
	}
	if _, ok := root[keyEndMarkers]; ok {
		return ShapeLegacy
	}
	return ShapeCurrent
}

// Adapt converts the document into a partial Set. Sections that cannot be
// read are skipped and reported; the catalog then falls back to the default
// list for exactly those sections.
func (d *OverrideDocument) Adapt() (Set, []error) {
	if d == nil {
		return NewSet(), nil
	}
	switch d.Shape {
	case ShapeLegacy:
		return adaptLegacy(d.raw)
	default:
		return adaptCurrent(d.raw)
	}
}

// Raw returns the normalized document, for echoing back to clients.
func (d *OverrideDocument) Raw() map[string]any {
	return d.raw
}

func adaptCurrent(root map[string]any) (Set, []error) {
	out := NewSet()
	var errs []error
	views := []struct {
		key  string
		view View
	}{
		{keyQuestions, ViewQuestions},
		{keyAnswerKeys, ViewAnswerKeys},
		{keyExplanations, ViewExplanations},
	}
	for _, v := range views {
		table, ok := root[v.key].(map[string]any)
		if !ok {
			continue
		}
		errs = append(errs, adaptTable(&out, v.view, v.key, table, nil)...)
		if v.view != ViewQuestions {
			if raw, ok := table[keySectionStart]; ok {
				list, err := markerList(raw)
				if err != nil {
					errs = append(errs, fmt.Errorf("%w: %s/%s: %v", ErrMalformedOverride, v.key, keySectionStart, err))
				} else if len(list) > 0 {
					out.PutSliceStart(v.view, list)
				}
			}
		}
	}
	return out, errs
}

func adaptLegacy(root map[string]any) (Set, []error) {
	out := NewSet()
	var errs []error

	endMarkers := map[string]any{}
	if em, ok := root[keyEndMarkers].(map[string]any); ok {
		endMarkers = em
	}

	if table, ok := root[keyQuestions].(map[string]any); ok {
		errs = append(errs, adaptTable(&out, ViewQuestions, keyQuestions, table, endMarkers)...)
	}

	if table, ok := root[keyLegacyAnswer].(map[string]any); ok {
		errs = append(errs, adaptTable(&out, ViewAnswerKeys, keyLegacyAnswer, table, nil)...)
		if raw, ok := table[keyLegacyRegion]; ok {
			list, err := markerList(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s/%s: %v", ErrMalformedOverride, keyLegacyAnswer, keyLegacyRegion, err))
			} else if len(list) > 0 {
				out.PutSliceStart(ViewAnswerKeys, list)
			}
		}
	}
	return out, errs
}

// adaptTable reads every known section of one view table. endMarkers is the
// legacy parallel end map; nil for the current shape.
func adaptTable(out *Set, view View, key string, table map[string]any, endMarkers map[string]any) []error {
	var errs []error
	for name, raw := range table {
		if name == keySectionStart || name == keyLegacyRegion {
			continue
		}
		sec, err := ParseSection(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s/%s: %v", ErrMalformedOverride, key, name, err))
			continue
		}
		m, err := sectionMarkers(view, sec, raw, endMarkers)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s/%s: %v", ErrMalformedOverride, key, name, err))
			continue
		}
		if len(m.Start) == 0 {
			continue
		}
		out.Put(view, sec, m)
	}
	return errs
}

// sectionMarkers reads one section value. An object supplies start and end
// directly; a bare list or string is a start list. A missing end inherits the
// default end list of that section; an explicitly empty end means "until the
// end of the region".
func sectionMarkers(view View, sec Section, raw any, endMarkers map[string]any) (Markers, error) {
	var m Markers
	hasEnd := false

	switch t := raw.(type) {
	case map[string]any:
		startRaw, ok := t[keyStart]
		if !ok {
			return Markers{}, errors.New("object has no start list")
		}
		start, err := markerList(startRaw)
		if err != nil {
			return Markers{}, fmt.Errorf("start: %w", err)
		}
		m.Start = start
		if endRaw, ok := t[keyEnd]; ok {
			end, err := markerList(endRaw)
			if err != nil {
				return Markers{}, fmt.Errorf("end: %w", err)
			}
			m.End = end
			hasEnd = true
		}
	case []any, string:
		start, err := markerList(t)
		if err != nil {
			return Markers{}, err
		}
		m.Start = start
	default:
		return Markers{}, fmt.Errorf("unsupported type %T", raw)
	}

	if !hasEnd && endMarkers != nil {
		if endRaw, ok := endMarkers[string(sec)]; ok {
			end, err := markerList(endRaw)
			if err != nil {
				return Markers{}, fmt.Errorf("endMarkers: %w", err)
			}
			m.End = end
			hasEnd = true
		}
	}
	if !hasEnd {
		def, _ := Defaults().Lookup(view, sec)
		m.End = def.End
	}
	if m.End == nil {
		m.End = []string{}
	}
	return m, nil
}

func markerList(raw any) ([]string, error) {
	switch t := raw.(type) {
	case nil:
		return []string{}, nil
	case string:
		if t == "" {
			return []string{}, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not a string", i, item)
			}
			if s == "" {
				continue
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", raw)
	}
}

// normalizeJSON round-trips a decoded value through encoding/json so YAML
// and JSON inputs reach the schema validator with identical types.
func normalizeJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
