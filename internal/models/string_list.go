package models

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StringList decodes from a BSON array or a single string. Older product
// documents stored category as a plain string.
type StringList []string

func (s *StringList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*s = nil
		return nil
	}
	if t == bsontype.String {
		var v string
		if err := bson.UnmarshalValue(t, data, &v); err != nil {
			return err
		}
		out := StringList{}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
		*s = out
		return nil
	}
	if t != bsontype.Array {
		return fmt.Errorf("string list: unsupported bson type %s", t)
	}

	var values []string
	if err := bson.UnmarshalValue(t, data, &values); err != nil {
		return err
	}
	*s = values
	return nil
}

// MarshalBSONValue writes an array, never a string.
func (s StringList) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if s == nil {
		return bson.MarshalValue([]string{})
	}
	return bson.MarshalValue([]string(s))
}
