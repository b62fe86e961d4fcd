package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/damedic/cql-engine-go/cql"
)

// DataProvider supplies the resources a Retrieve reads.
//
// context is the name of the active context, e.g. "Patient", and
// contextValue the value it is bound to. An empty context or "Unfiltered"
// asks for the data of all subjects.
type DataProvider interface {
	Retrieve(ctx context.Context, context string, contextValue cql.Value, dataType string) (cql.List, error)
}

// MemoryData is a DataProvider over resources held in memory, keyed by
// subject id and data type. It is safe for concurrent use.
type MemoryData struct {
	mu       sync.RWMutex
	subjects map[string]map[string]cql.List
}

func NewMemoryData() *MemoryData {
	return &MemoryData{subjects: map[string]map[string]cql.List{}}
}

// Add appends resources of dataType to the data of subject.
func (d *MemoryData) Add(subject, dataType string, resources ...cql.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	types, ok := d.subjects[subject]
	if !ok {
		types = map[string]cql.List{}
		d.subjects[subject] = types
	}
	types[dataType] = append(types[dataType], resources...)
}

// Subjects returns all subject ids in sorted order.
func (d *MemoryData) Subjects() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.subjects))
}

func (d *MemoryData) Retrieve(ctx context.Context, context string, contextValue cql.Value, dataType string) (cql.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if context == "" || context == "Unfiltered" {
		out := cql.List{}
		for _, subject := range slices.Sorted(maps.Keys(d.subjects)) {
			out = append(out, d.subjects[subject][dataType]...)
		}
		return out, nil
	}

	switch v := contextValue.(type) {
	case nil:
		return cql.List{}, nil
	case cql.String:
		return slices.Clone(d.subjects[string(v)][dataType]), nil
	}
	return nil, fmt.Errorf("context %s: unsupported context value %s", context, cql.TypeName(contextValue))
}

// DecodeMemoryData reads resources in the shape
//
//	{"<subject>": {"<dataType>": [<resource>, ...]}}
//
// Resources are converted with ValueFromJSON.
func DecodeMemoryData(r io.Reader) (*MemoryData, error) {
	var raw map[string]map[string][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	d := NewMemoryData()
	for subject, types := range raw {
		for dataType, resources := range types {
			for i, res := range resources {
				v, err := ValueFromJSON(res)
				if err != nil {
					return nil, fmt.Errorf("decode data: %s.%s[%d]: %w", subject, dataType, i, err)
				}
				d.Add(subject, dataType, v)
			}
		}
	}
	return d, nil
}

// ValueFromJSON converts a JSON document into a value. Objects become
// tuples with their members in document order, integral numbers Integer
// (or Long when they do not fit) and other numbers Decimal.
func ValueFromJSON(data []byte) (cql.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (cql.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return nil, nil
	case bool:
		return cql.Boolean(t), nil
	case string:
		return cql.String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '[':
			l := cql.List{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				l = append(l, v)
			}
			_, err := dec.Token()
			return l, err
		case '{':
			tuple := cql.Tuple{}
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				tuple = append(tuple, cql.TupleField{Name: key.(string), Value: v})
			}
			_, err := dec.Token()
			return tuple, err
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberValue(n json.Number) (cql.Value, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		if int64(int32(i)) == i {
			return cql.Integer(i), nil
		}
		return cql.Long(i), nil
	}
	return cql.ParseDecimal(n.String())
}
