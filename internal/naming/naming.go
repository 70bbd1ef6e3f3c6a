package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// Namer derives relation names from table and column names.
// Relation names are snake_case, matching the column naming of the rows they are attached to.
type Namer struct {
	config Config
	logger *slog.Logger
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// BelongsToName names a direct reference after its foreign key column with common suffixes stripped.
// Example: "author_id" -> "author", "likeable_id" -> "likeable"
func (n *Namer) BelongsToName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return ToSnakeCase(name)
}

// HasManyName names a one-to-many relation after the referencing table.
// When the referencing table holds several foreign keys to the same owner, the
// foreign key prefix disambiguates.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="editor_id": "posts" -> "editor_posts"
func (n *Namer) HasManyName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.Pluralize(ToSnakeCase(sourceTable))
	if isOnlyFK {
		return plural
	}
	return n.BelongsToName(fkColumn) + "_" + plural
}

// ThroughName names a many-to-many relation after its target table.
// Example: "tag" -> "tags"
func (n *Namer) ThroughName(targetTable string) string {
	return n.Pluralize(ToSnakeCase(targetTable))
}

// TableForType resolves a polymorphic type discriminator value to a table name.
// Example: "Product" -> "products", "LineItem" -> "line_items", "Admin::User" -> "users"
func (n *Namer) TableForType(typeValue string) string {
	name := strings.TrimSpace(typeValue)
	if idx := strings.LastIndex(name, "::"); idx != -1 {
		name = name[idx+2:]
	}
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[idx+1:]
	}
	return n.Pluralize(ToSnakeCase(name))
}

// ToSnakeCase converts CamelCase or mixed identifiers to snake_case.
// Example: "LineItem" -> "line_item", "userID" -> "user_id", "already_snake" -> "already_snake"
func ToSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		if r == '-' || r == ' ' {
			b.WriteRune('_')
			continue
		}
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' && runes[i-1] != ' ' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
