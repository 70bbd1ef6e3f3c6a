package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBelongsToName(t *testing.T) {
	n := Default()
	tests := map[string]string{
		"author_id":    "author",
		"likeable_id":  "likeable",
		"owner_fk":     "owner",
		"parent":       "parent",
		"createdByID":  "created_by_id",
		"_id":          "_id",
		"city_ID":      "city",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, n.BelongsToName(input))
		})
	}
}

func TestHasManyName(t *testing.T) {
	n := Default()
	assert.Equal(t, "comments", n.HasManyName("comment", "post_id", true))
	assert.Equal(t, "comments", n.HasManyName("comments", "post_id", true))
	assert.Equal(t, "editor_posts", n.HasManyName("posts", "editor_id", false))
	assert.Equal(t, "line_items", n.HasManyName("line_item", "order_id", true))
}

func TestThroughName(t *testing.T) {
	n := Default()
	assert.Equal(t, "tags", n.ThroughName("tag"))
	assert.Equal(t, "tags", n.ThroughName("tags"))
}

func TestTableForType(t *testing.T) {
	n := Default()
	tests := map[string]string{
		"Product":     "products",
		"Look":        "looks",
		"LineItem":    "line_items",
		"Admin::User": "users",
		"app.Person":  "people",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, n.TableForType(input))
		})
	}
}

func TestOverrides(t *testing.T) {
	n := New(Config{
		PluralOverrides:   map[string]string{"status": "statuses", "datum": "data"},
		SingularOverrides: map[string]string{"data": "datum"},
	}, nil)
	assert.Equal(t, "statuses", n.Pluralize("status"))
	assert.Equal(t, "order_statuses", n.Pluralize("order_status"))
	assert.Equal(t, "datum", n.Singularize("data"))
	assert.Equal(t, "sensor_datum", n.Singularize("sensor_data"))
	assert.Equal(t, "order_status", n.Singularize("order_statuses"))
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"LineItem":      "line_item",
		"userID":        "user_id",
		"HTTPServer":    "http_server",
		"already_snake": "already_snake",
		"with space":    "with_space",
		"":              "",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, ToSnakeCase(input))
		})
	}
}
