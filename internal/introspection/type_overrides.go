package introspection

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"rowpreload/internal/sqltype"
)

// ApplyUUIDTypeOverrides marks columns matching table/column glob patterns as UUIDs.
// UUID columns stored as BINARY(16) are then projected and joined on their text form.
// Keys of patterns are table globs; values are column globs. Matching is case-insensitive.
func ApplyUUIDTypeOverrides(schema *Schema, patterns map[string][]string) error {
	if schema == nil || len(patterns) == 0 {
		return nil
	}
	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		columnGlobs := columnGlobsFor(patterns, table.Name)
		if len(columnGlobs) == 0 {
			continue
		}
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if !globMatch(columnGlobs, col.Name) {
				continue
			}
			if err := checkUUIDStorage(*col); err != nil {
				return fmt.Errorf("invalid UUID mapping for %s.%s: %w", table.Name, col.Name, err)
			}
			col.OverrideType = sqltype.TypeUUID
			col.HasOverrideType = true
		}
	}
	return nil
}

// columnGlobsFor collects column globs from every table glob matching table, in key order.
func columnGlobsFor(patterns map[string][]string, table string) []string {
	tableGlobs := make([]string, 0, len(patterns))
	for glob := range patterns {
		tableGlobs = append(tableGlobs, glob)
	}
	sort.Strings(tableGlobs)

	var globs []string
	for _, glob := range tableGlobs {
		if globMatch([]string{glob}, table) {
			globs = append(globs, patterns[glob]...)
		}
	}
	return globs
}

func globMatch(globs []string, name string) bool {
	name = strings.ToLower(name)
	for _, glob := range globs {
		glob = strings.ToLower(strings.TrimSpace(glob))
		if glob == "" {
			continue
		}
		if ok, err := path.Match(glob, name); err == nil && ok {
			return true
		}
	}
	return false
}

func checkUUIDStorage(col Column) error {
	length, hasLength := declaredLength(col)
	switch base := strings.ToLower(strings.TrimSpace(col.DataType)); base {
	case "uuid":
		return nil
	case "binary", "varbinary":
		if !hasLength || length != 16 {
			return fmt.Errorf("%s requires length 16 for UUID binary storage", strings.ToUpper(base))
		}
		return nil
	case "char", "varchar":
		if !hasLength || length < 36 {
			return fmt.Errorf("%s requires length >= 36 for UUID text storage", strings.ToUpper(base))
		}
		return nil
	default:
		return fmt.Errorf("unsupported SQL type %q for UUID mapping", col.DataType)
	}
}

var typeLengthPattern = regexp.MustCompile(`\(\s*(\d+)`)

// declaredLength extracts the first length argument, e.g. 16 from "binary(16)".
func declaredLength(col Column) (int, bool) {
	spec := col.ColumnType
	if strings.TrimSpace(spec) == "" {
		spec = col.DataType
	}
	match := typeLengthPattern.FindStringSubmatch(spec)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	return n, err == nil
}
