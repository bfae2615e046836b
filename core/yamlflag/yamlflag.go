// Package yamlflag provides a command line flag that accepts a YAML document.
package yamlflag

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"

	"github.com/ghodss/yaml"
)

// New creates a flag.Value that recognizes a YAML document.
//
// The YAML document can be specified directly on the command line:
//   --config="localIP: 192.168.1.128"
// Or it can be read from a file, when the flag value starts with '@':
//   --config=@udpcore.yaml
//
// The document is converted to JSON before decoding, so json struct tags and
// json.Unmarshaler implementations of the target apply.
// value must be a pointer; New panics otherwise.
func New(value any) flag.Getter {
	if val := reflect.ValueOf(value); val.Kind() != reflect.Ptr {
		panic(val.Kind())
	}
	return &yamlFlagValue{value}
}

type yamlFlagValue struct {
	Value any
}

func (v *yamlFlagValue) Get() any {
	return v.Value
}

func (v *yamlFlagValue) Set(s string) error {
	doc := []byte(s)
	if len(s) >= 1 && s[0] == '@' {
		file, e := os.ReadFile(s[1:])
		if e != nil {
			return e
		}
		doc = file
	}
	if e := yaml.Unmarshal(doc, v.Value); e != nil {
		return fmt.Errorf("yaml.Unmarshal %w", e)
	}
	return nil
}

func (v *yamlFlagValue) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	j, _ := json.Marshal(v.Value)
	return string(j)
}
