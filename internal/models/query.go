package models

// ShapeGenerated marks a QuerySpec produced by the language model rather than a template.
const ShapeGenerated = "generated"

// QuerySpec is a single parameterized statement bound for one data source.
// Params are positional ($1, $2, ...) and are never interpolated into Statement.
type QuerySpec struct {
	Statement string
	Params    []any
	Source    DataSource
	Shape     string
}
