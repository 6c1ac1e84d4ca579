package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nmslite/snmppoller/internal/request"
)

// Expand builds one request per column and index, row by row. Each row
// request inherits its column's renderer.
func Expand(columns []*request.ValueRequest, indices []string) []*request.ValueRequest {
	rows := make([]*request.ValueRequest, 0, len(columns)*len(indices))
	for _, idx := range indices {
		for _, column := range columns {
			rows = append(rows, request.New(request.Join(column.OID(), idx), column.Renderer()))
		}
	}
	return rows
}

// CountExpansion reads the value as a row count N and expands indices 1..N.
// This fits tables indexed by a dense counter such as ifNumber/ifIndex.
func CountExpansion(value string, columns []*request.ValueRequest) ([]*request.ValueRequest, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: row count %q", ErrInvalidRows, value)
	}
	indices := make([]string, n)
	for i := range indices {
		indices[i] = strconv.Itoa(i + 1)
	}
	return Expand(columns, indices), nil
}

// IndexListExpansion reads the value as a list of instance suffixes
// separated by commas or whitespace
func IndexListExpansion(value string, columns []*request.ValueRequest) ([]*request.ValueRequest, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	indices := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f == "" {
			continue
		}
		if !validSuffix(f) {
			return nil, fmt.Errorf("%w: index %q", ErrInvalidRows, f)
		}
		indices = append(indices, f)
	}
	return Expand(columns, indices), nil
}

// IndexExpansion takes each walked instance's suffix below root as a row
// index. root is expected to be an index column; repeated suffixes are
// folded.
func IndexExpansion(root string, walked, columns []*request.ValueRequest) ([]*request.ValueRequest, error) {
	seen := make(map[string]struct{}, len(walked))
	indices := make([]string, 0, len(walked))
	for _, vr := range walked {
		suffix := request.Suffix(vr.OID(), root)
		if suffix == "" {
			continue
		}
		if _, ok := seen[suffix]; ok {
			continue
		}
		seen[suffix] = struct{}{}
		indices = append(indices, suffix)
	}
	return Expand(columns, indices), nil
}

// ValueIndexExpansion takes each walked instance's value as the row index,
// for index columns whose values differ from their instance suffixes
func ValueIndexExpansion(_ string, walked, columns []*request.ValueRequest) ([]*request.ValueRequest, error) {
	indices := make([]string, 0, len(walked))
	for _, vr := range walked {
		value := strings.TrimSpace(vr.ResultValue())
		if !validSuffix(value) {
			return nil, fmt.Errorf("%w: index value %q at %s", ErrInvalidRows, value, vr.OID())
		}
		indices = append(indices, value)
	}
	return Expand(columns, indices), nil
}

// SimpleFilterByName resolves the simple table filters accepted in
// configuration
func SimpleFilterByName(name string) (SimpleFilter, error) {
	switch name {
	case "", "count":
		return CountExpansion, nil
	case "index_list":
		return IndexListExpansion, nil
	}
	return nil, fmt.Errorf("unknown simple table filter %q", name)
}

// ComplexFilterByName resolves the complex table filters accepted in
// configuration
func ComplexFilterByName(name string) (ComplexFilter, error) {
	switch name {
	case "", "index":
		return IndexExpansion, nil
	case "value":
		return ValueIndexExpansion, nil
	}
	return nil, fmt.Errorf("unknown complex table filter %q", name)
}

func validSuffix(s string) bool {
	for _, arc := range strings.Split(s, ".") {
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return false
		}
	}
	return true
}
