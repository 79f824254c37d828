package database

import (
	"embed"
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// schemaFiles maps database names to their schema file
var schemaFiles = map[string]string{
	"portvault": "schemas/portvault_schema.sql",
}

// SchemaFor returns the schema SQL registered for a database name
func SchemaFor(name string) (string, bool) {
	file, ok := schemaFiles[name]
	if !ok {
		return "", false
	}

	content, err := schemaFS.ReadFile(file)
	if err != nil {
		return "", false
	}

	return string(content), true
}
