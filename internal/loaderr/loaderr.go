// Package loaderr defines the error taxonomy shared by the relation loader.
//
// Configuration errors describe programming or configuration mistakes (unknown
// relation names, malformed relation specifications, unsupported relationship
// kinds). Data-access errors are never wrapped here: they travel back to the
// caller exactly as the query executor returned them.
package loaderr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a relation specification or schema mistake.
type ConfigurationError struct {
	Entity   string
	Relation string
	// Value holds the offending specification value, when there is one.
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Relation != "" && e.Entity != "":
		return fmt.Sprintf("relation %q on %q: %s", e.Relation, e.Entity, e.Reason)
	case e.Entity != "":
		return fmt.Sprintf("entity %q: %s", e.Entity, e.Reason)
	case e.Value != nil:
		return fmt.Sprintf("%#v: %s", e.Value, e.Reason)
	default:
		return e.Reason
	}
}

// UnknownRelation builds the error returned when a relation name cannot be resolved.
func UnknownRelation(entity, relation string) error {
	return &ConfigurationError{Entity: entity, Relation: relation, Reason: "relation not found"}
}

// UnknownEntity builds the error returned when a table is missing from the schema.
func UnknownEntity(entity string) error {
	return &ConfigurationError{Entity: entity, Reason: "entity not found"}
}

// Unrecognized builds the error returned for a specification value of an unsupported shape.
func Unrecognized(value any) error {
	return &ConfigurationError{Value: value, Reason: "was not recognized for preload"}
}

// IsConfiguration reports whether err (or anything it wraps) is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
