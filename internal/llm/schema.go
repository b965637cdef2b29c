package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"
)

// typeSchema pairs the serialized schema embedded in prompts with its
// compiled validator.
type typeSchema struct {
	raw      string
	compiled *jsonschema.Schema
}

var (
	schemaCache sync.Map // reflect.Type -> *typeSchema
	schemaGroup singleflight.Group
)

// schemaFor derives the JSON schema for T from its struct tags, compiles it,
// and caches both keyed by type. Concurrent first calls for the same type
// share one derivation.
func schemaFor[T any]() (*typeSchema, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*typeSchema), nil
	}

	v, err, _ := schemaGroup.Do(t.String(), func() (any, error) {
		if cached, ok := schemaCache.Load(t); ok {
			return cached, nil
		}

		reflector := &invopop.Reflector{
			// Inline definitions so the schema is self-contained when
			// embedded in a prompt.
			DoNotReference: true,
		}
		derived := reflector.Reflect(new(T))

		raw, err := json.Marshal(derived)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", t, err)
		}

		compiled, err := jsonschema.CompileString(t.String(), string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t, err)
		}

		ts := &typeSchema{raw: string(raw), compiled: compiled}
		schemaCache.Store(t, ts)
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*typeSchema), nil
}
