package flow

import "github.com/go-playground/validator/v10"

// nameSubject is the struct go-playground/validator runs the node-name
// rule against. Using a struct tag here (rather than a hand-rolled
// regex check) follows the same validator-driven config-validation idiom
// ahrav-go-gavel applies to its own node/config structs.
type nameSubject struct {
	Name string `validate:"required,printascii,excludesall= \t\n"`
}

// newNameValidator builds a closure validating a candidate node name
// against the INVALID_NODE_NAME rule: non-empty, printable ASCII, and
// free of whitespace (so names are safe to use as map keys, CLI
// arguments, and log fields without quoting).
func newNameValidator() func(string) error {
	v := validator.New()
	return func(name string) error {
		return v.Struct(nameSubject{Name: name})
	}
}
