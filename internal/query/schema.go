package query

// ArgType is the declared type of one tool argument.
type ArgType string

const (
	TypeString     ArgType = "string"
	TypeInt        ArgType = "integer"
	TypeBool       ArgType = "boolean"
	TypeStringList ArgType = "string_list"
	TypeObject     ArgType = "object"
)

// Field declares one argument of a tool's input schema.
type Field struct {
	Name        string
	Type        ArgType
	Required    bool
	Enum        []string
	Description string
}

// Schema is a tool's declared input contract. Immutable after
// construction; validated against on every call before any backend
// interaction.
type Schema struct {
	Fields []Field
}

// Lookup returns the declared field with the given name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
