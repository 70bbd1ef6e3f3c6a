package introspection

import "rowpreload/internal/loaderr"

// RegisterMethod attaches a named derived value to a table so relation specs can
// request it under "methods".
func (s *Schema) RegisterMethod(table, name string, fn Method) error {
	t := s.Table(table)
	if t == nil {
		return loaderr.UnknownEntity(table)
	}
	if t.Methods == nil {
		t.Methods = make(map[string]Method)
	}
	t.Methods[name] = fn
	return nil
}

// Method returns the named method registered on the table.
func (t *Table) Method(name string) (Method, bool) {
	fn, ok := t.Methods[name]
	return fn, ok && fn != nil
}
