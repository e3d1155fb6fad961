package introspect

import (
	"fmt"
	"reflect"
)

// DecodeTriples converts the decoded value of the associations property into
// a slice of Triple. The wire type is an array of (string, string, string)
// structs; godbus hands those back as []interface{} of
// []interface{}{string, string, string} unless the caller decodes straight
// into a concrete struct slice, so this accepts both that shape and a
// directly-provided []Triple (what internal/testbus's fakes use in tests).
// The signal dispatcher uses this too, to decode the Associations property
// out of an InterfacesAdded payload (spec.md §4.5).
func DecodeTriples(v interface{}) ([]Triple, error) {
	if triples, ok := v.([]Triple); ok {
		return triples, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("associations property is %T, not a list", v)
	}
	out := make([]Triple, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		t, err := decodeTriple(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeTriple(v interface{}) (Triple, error) {
	if t, ok := v.(Triple); ok {
		return t, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Triple{}, fmt.Errorf("association entry is %T, not a 3-tuple", v)
	}
	if rv.Len() != 3 {
		return Triple{}, fmt.Errorf("association entry has %d fields, want 3", rv.Len())
	}
	fields := make([]string, 3)
	for i := 0; i < 3; i++ {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return Triple{}, fmt.Errorf("association entry field %d is %T, not a string", i, rv.Index(i).Interface())
		}
		fields[i] = s
	}
	return Triple{Forward: fields[0], Reverse: fields[1], Endpoint: fields[2]}, nil
}
