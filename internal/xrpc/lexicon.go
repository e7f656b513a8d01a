package xrpc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/listfresh/listfresh/internal/atproto"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// listItemSchema is the subset of the app.bsky.graph.listitem lexicon this
// service relies on.
const listItemSchema = `{
	"type": "object",
	"required": ["createdAt"],
	"properties": {
		"$type": {"const": "app.bsky.graph.listitem"},
		"subject": {"type": "string", "pattern": "^did:"},
		"list": {"type": "string", "pattern": "^at://"},
		"createdAt": {"type": "string", "minLength": 1}
	}
}`

// recordValidator checks fetched record values against per-collection schemas.
type recordValidator struct {
	schemas map[atproto.NSID]*jsonschema.Schema
}

func newRecordValidator() (*recordValidator, error) {
	sources := map[atproto.NSID]string{
		atproto.CollectionListItem: listItemSchema,
	}

	c := jsonschema.NewCompiler()

	v := &recordValidator{schemas: make(map[atproto.NSID]*jsonschema.Schema, len(sources))}
	for nsid, src := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("newRecordValidator: %s: %w", nsid, err)
		}
		url := string(nsid) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("newRecordValidator: %s: %w", nsid, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("newRecordValidator: %s: %w", nsid, err)
		}
		v.schemas[nsid] = sch
	}
	return v, nil
}

// validate checks raw against the schema for collection. Collections without
// a schema pass.
func (v *recordValidator) validate(collection atproto.NSID, raw []byte) error {
	sch, ok := v.schemas[collection]
	if !ok {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s record is not valid JSON: %w", collection, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%s record failed validation: %w", collection, err)
	}
	return nil
}
