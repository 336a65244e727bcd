package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/exp/slices"

	"github.com/dreamware/nudge/internal/hint"
)

// SchemaVersion is written into every export
const SchemaVersion = "1.0"

// supportedSchema accepts any 1.x payload
var supportedSchema = regexp.MustCompile(`^1(\.[0-9]+)*$`)

// Payload is the portable form of the store
type Payload struct {
	SchemaVersion string                    `json:"schema_version"`
	CreatedAt     time.Time                 `json:"created_at"`
	SessionID     string                    `json:"session_id"`
	Components    map[string]ComponentHints `json:"components"`
}

// ComponentHints holds the exported entries of one component
type ComponentHints struct {
	Hints map[string]*hint.Entry `json:"hints"`
}

// ExportFilter narrows an export
// An empty Component exports every component
type ExportFilter struct {
	Component string
	Tags      []string
}

// Export snapshots the live entries selected by f
func (s *Store) Export(f ExportFilter) Payload {
	s.ops.exports.Add(1)
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := Payload{
		SchemaVersion: SchemaVersion,
		CreatedAt:     s.startedAt,
		SessionID:     s.sessionID,
		Components:    make(map[string]ComponentHints),
	}
	for name, comp := range s.components {
		if f.Component != "" && name != f.Component {
			continue
		}
		hints := make(map[string]*hint.Entry)
		for key, rec := range comp {
			if !rec.live(now) {
				continue
			}
			if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, rec.entry.Meta.HasTag) {
				continue
			}
			hints[key] = rec.entry.Clone()
		}
		if len(hints) > 0 {
			p.Components[name] = ComponentHints{Hints: hints}
		}
	}
	return p
}

// ImportMode selects how an import treats existing entries
type ImportMode string

const (
	// ImportMerge upserts every incoming entry over the current store
	ImportMerge ImportMode = "merge"
	// ImportReplace clears the target scope first, then merges
	ImportReplace ImportMode = "replace"
)

// ImportOptions configures an import
type ImportOptions struct {
	Mode      ImportMode
	Component string // Restricts the import, and a replace, to one component
}

// ImportResult counts the outcome of an import
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

const payloadSchemaJSON = `{
  "type": "object",
  "required": ["schema_version", "components"],
  "properties": {
    "schema_version": {"type": "string"},
    "created_at": {"type": "string"},
    "session_id": {"type": "string"},
    "components": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["hints"],
        "properties": {"hints": {"type": "object"}}
      }
    }
  }
}`

const entrySchemaJSON = `{
  "type": "object",
  "required": ["value"],
  "properties": {
    "value": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {
          "type": "object",
          "required": ["type"],
          "properties": {"type": {"enum": ["string", "command", "path", "template", "json"]}}
        }
      ]
    },
    "meta": {
      "type": "object",
      "properties": {
        "reason": {"type": "string"},
        "tags": {"type": "array", "items": {"type": "string"}},
        "priority": {"type": "integer", "minimum": 1, "maximum": 10},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "ttl": {"type": "string"},
        "sensitivity": {"enum": ["normal", "secret"]},
        "source": {"enum": ["user", "agent", "tool-output", "file-import"]},
        "scope": {"type": "object"},
        "added_by": {"type": "string"}
      }
    },
    "version": {"type": "integer", "minimum": 1},
    "use_count": {"type": "integer", "minimum": 0},
    "created_at": {"type": "string"},
    "updated_at": {"type": "string"},
    "last_used_at": {"type": "string"}
  }
}`

var (
	payloadSchema = mustSchema(payloadSchemaJSON)
	entrySchema   = mustSchema(entrySchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("storage: bad embedded schema: %v", err))
	}
	return schema
}

// validate runs a schema and folds its errors into one message
func validate(schema *gojsonschema.Schema, doc []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

type importDoc struct {
	SchemaVersion string `json:"schema_version"`
	Components    map[string]struct {
		Hints map[string]json.RawMessage `json:"hints"`
	} `json:"components"`
}

// staged is one incoming entry that passed validation
type staged struct {
	prepared
	useCount   int64
	lastUsedAt *time.Time
}

// Import loads a payload produced by Export
// A payload that is malformed at the top level or declares a schema version
// other than 1.x is rejected whole; individual entries that fail validation
// or hit a quota are skipped and counted
func (s *Store) Import(raw []byte, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	switch opts.Mode {
	case "":
		opts.Mode = ImportMerge
	case ImportMerge, ImportReplace:
	default:
		return res, hint.FieldError(hint.CodeInvalid, "mode", "unknown import mode %q", opts.Mode)
	}

	if err := validate(payloadSchema, raw); err != nil {
		return res, hint.FieldError(hint.CodeInvalid, "payload", "malformed payload: %v", err)
	}
	var doc importDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return res, hint.FieldError(hint.CodeInvalid, "payload", "malformed payload: %v", err)
	}
	if !supportedSchema.MatchString(doc.SchemaVersion) {
		return res, hint.FieldError(hint.CodeInvalid, "schema_version", "unsupported schema version %q", doc.SchemaVersion)
	}

	names := make([]string, 0, len(doc.Components))
	for name := range doc.Components {
		if opts.Component == "" || name == opts.Component {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var batch []staged
	for _, name := range names {
		hints := doc.Components[name].Hints
		keys := make([]string, 0, len(hints))
		for k := range hints {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			st, err := s.stage(name, key, hints[key])
			if err != nil {
				res.Skipped++
				s.log.Debug().Err(err).Str("hint_component", name).Str("key", key).Msg("import skipped entry")
				continue
			}
			batch = append(batch, st)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Mode == ImportReplace {
		s.clearLocked(opts.Component)
	}
	now := s.clock.Now()
	for _, st := range batch {
		rec, created, err := s.upsertLocked(st.prepared, now)
		if err != nil {
			res.Skipped++
			s.log.Debug().Err(err).Str("hint_component", st.req.Component).Str("key", st.req.Key).Msg("import skipped entry")
			continue
		}
		if created {
			rec.entry.UseCount = st.useCount
			rec.entry.LastUsedAt = st.lastUsedAt
		}
		res.Imported++
	}
	s.ops.imports.Add(1)
	s.log.Info().
		Str("mode", string(opts.Mode)).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Msg("import complete")
	return res, nil
}

// stage validates one incoming entry without touching the store
func (s *Store) stage(component, key string, raw json.RawMessage) (staged, error) {
	if err := validate(entrySchema, raw); err != nil {
		return staged{}, hint.FieldError(hint.CodeInvalid, "payload", "%v", err)
	}
	var e hint.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return staged{}, hint.FieldError(hint.CodeInvalid, "payload", "%v", err)
	}
	p, err := s.prepare(UpsertRequest{
		Component:   component,
		Key:         key,
		Value:       e.Value,
		Meta:        e.Meta,
		AllowSecret: e.Meta.Sensitivity == hint.SensitivitySecret,
	})
	if err != nil {
		return staged{}, err
	}
	return staged{prepared: p, useCount: e.UseCount, lastUsedAt: e.LastUsedAt}, nil
}

// clearLocked empties one component, or the whole store when component is
// empty. Callers hold s.mu
func (s *Store) clearLocked(component string) {
	if component == "" {
		s.components = make(map[string]map[string]*record)
		s.total = 0
		return
	}
	s.total -= len(s.components[component])
	delete(s.components, component)
}
