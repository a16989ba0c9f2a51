package main

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
	"gopkg.in/yaml.v3"
)

type outputFormat int

const (
	formatText outputFormat = iota
	formatJSON
	formatYAML
	formatCBOR
)

var formatIdentifiers = map[outputFormat][]string{
	formatText: {"text"},
	formatJSON: {"json"},
	formatYAML: {"yaml", "yml"},
	formatCBOR: {"cbor"},
}

func (f outputFormat) String() string {
	if ids, ok := formatIdentifiers[f]; ok {
		return ids[0]
	}
	return fmt.Sprintf("outputFormat(%d)", int(f))
}

func parseFormat(input string) (outputFormat, error) {
	name := strings.TrimSpace(input)
	for f, ids := range formatIdentifiers {
		for _, id := range ids {
			if strings.EqualFold(id, name) {
				return f, nil
			}
		}
	}
	return formatText, fmt.Errorf("unknown format: %q (available: text, json, yaml, cbor)", input)
}

func defineFormat(fieldValue reflect.Value, descr string) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*outputFormat)
	*fieldPtr = formatText
	return enumflag.New(fieldPtr, "format", formatIdentifiers, enumflag.EnumCaseInsensitive), descr
}

func decodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseFormat(s)
}

// cborEncMode produces deterministic output so reports can be compared byte
// for byte.
var cborEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
	return em
}()

func encode(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatCBOR:
		return cborEncMode.NewEncoder(w).Encode(v)
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}
