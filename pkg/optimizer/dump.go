package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Store persists debug documents by name.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// DumpPaths names where each document is written. Empty names are skipped.
// A non-empty Override names a response document that replaces the
// optimizer's answer.
type DumpPaths struct {
	Network    string `mapstructure:"network"`
	Dictionary string `mapstructure:"dictionary"`
	Request    string `mapstructure:"request"`
	Workflow   string `mapstructure:"workflow"`
	Response   string `mapstructure:"response"`
	Override   string `mapstructure:"override"`
}

// responseSchema is the minimal shape a hand-edited response must keep.
const responseSchema = `{
  "type": "object",
  "required": ["workflow"],
  "properties": {
    "optimizationRequestId": {"type": "string"},
    "workflow": {
      "type": "object",
      "required": ["operators"],
      "properties": {
        "operators": {
          "type": "array",
          "items": {"type": "object", "required": ["name", "classKey"]}
        },
        "placementSites": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["siteName", "availablePlatforms"],
            "properties": {
              "availablePlatforms": {
                "type": "array",
                "items": {"type": "object", "required": ["platformName", "operators"]}
              }
            }
          }
        }
      }
    }
  }
}`

// Dumper writes the exchanged documents to a store and optionally swaps the
// optimizer response for an edited one.
type Dumper struct {
	store  Store
	paths  DumpPaths
	logger *zap.Logger
	schema *jsonschema.Schema
}

// NewDumper creates a dumper writing to store.
func NewDumper(store Store, paths DumpPaths, logger *zap.Logger) (*Dumper, error) {
	if store == nil {
		return nil, fmt.Errorf("dump store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("response.json", strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("failed to add response schema: %w", err)
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile response schema: %w", err)
	}

	return &Dumper{store: store, paths: paths, logger: logger, schema: schema}, nil
}

// DumpDocuments writes the request documents.
func (d *Dumper) DumpDocuments(ctx context.Context, e *Encoded) error {
	for _, doc := range []struct {
		name string
		data []byte
	}{
		{d.paths.Network, e.Network},
		{d.paths.Dictionary, e.Dictionary},
		{d.paths.Request, e.Request},
		{d.paths.Workflow, e.Workflow},
	} {
		if err := d.save(ctx, doc.name, doc.data); err != nil {
			return err
		}
	}
	return nil
}

// DumpResponse writes the optimizer response.
func (d *Dumper) DumpResponse(ctx context.Context, resp *Response) error {
	if d.paths.Response == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal optimizer response: %w", err)
	}
	return d.save(ctx, d.paths.Response, data)
}

// Override returns the response read from the override document, or resp
// when no override is configured. The document must match the response shape.
func (d *Dumper) Override(ctx context.Context, resp *Response) (*Response, error) {
	if d.paths.Override == "" {
		return resp, nil
	}
	data, err := d.store.Load(ctx, d.paths.Override)
	if err != nil {
		return nil, fmt.Errorf("failed to load response override %s: %w", d.paths.Override, err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("response override %s is not valid JSON: %w", d.paths.Override, err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response override %s is invalid: %w", d.paths.Override, err)
	}

	override, err := DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Using response override",
		zap.String("path", d.paths.Override),
		zap.String("request_id", override.OptimizationRequestID))
	return override, nil
}

func (d *Dumper) save(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return nil
	}
	if err := d.store.Save(ctx, name, data); err != nil {
		return fmt.Errorf("failed to dump %s: %w", name, err)
	}
	d.logger.Debug("Dumped optimizer document", zap.String("path", name), zap.Int("size", len(data)))
	return nil
}
