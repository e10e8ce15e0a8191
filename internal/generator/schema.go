package generator

import (
	"context"
	"fmt"
	"strings"

	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

// indexedColumns are the commonly filtered columns that get an index when
// present, in index creation order.
var indexedColumns = []string{"user_id", "status", "category", "region", "created_at"}

// Schema emits a CREATE TABLE statement for the entity named by the prompt.
type Schema struct {
	Settings Settings
}

func (g Schema) Generate(_ context.Context, in Input) (*domain.GeneratedArtifact, error) {
	lower := in.lower()
	table := prompt.EntityName(in.Request.Prompt, g.Settings.DefaultEntity)
	def := g.Define(table, lower)
	code, err := render("schema.sql.tmpl", schemaView{
		Schema:  g.Settings.SchemaName,
		Table:   table,
		Lines:   definitionLines(def),
		Indexes: def.Indexes,
	})
	if err != nil {
		return nil, err
	}
	return &domain.GeneratedArtifact{
		ArtifactType:     domain.ArtifactTableSchema,
		ArtifactName:     table,
		GeneratedCode:    code,
		SchemaDefinition: &def,
		LinkedModules:    prompt.LinkedModules.All(lower),
	}, nil
}

// Define builds the structured table definition. Domain columns sit between
// id and the trailing timestamps.
func (g Schema) Define(table, lower string) domain.SchemaDefinition {
	cols := []domain.Column{{Name: "id", Type: "UUID", PrimaryKey: true, Default: "gen_random_uuid()"}}
	var constraints []domain.Constraint
	if prompt.FeedbackColumns.Match(lower) {
		cols = append(cols,
			domain.Column{Name: "title", Type: "TEXT"},
			domain.Column{Name: "description", Type: "TEXT", Nullable: true},
			domain.Column{Name: "category", Type: "TEXT", Nullable: true},
			domain.Column{Name: "status", Type: "TEXT", Default: "'pending'"},
			domain.Column{Name: "user_id", Type: "UUID", Nullable: true, References: g.Settings.UserTable + "(id)"},
		)
	}
	if prompt.RegionColumn.Match(lower) {
		cols = append(cols, domain.Column{Name: "region", Type: "TEXT", Nullable: true})
	}
	if prompt.RatingColumn.Match(lower) {
		cols = append(cols, domain.Column{Name: "rating", Type: "INTEGER", Nullable: true})
		constraints = append(constraints, domain.Constraint{
			Name:       "chk_" + table + "_rating",
			Kind:       "check",
			Definition: "CHECK (rating BETWEEN 1 AND 5)",
		})
	}
	cols = append(cols,
		domain.Column{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		domain.Column{Name: "updated_at", Type: "TIMESTAMPTZ", Default: "now()"},
	)

	present := map[string]bool{}
	for _, c := range cols {
		present[c.Name] = true
		if c.References != "" {
			constraints = append(constraints, domain.Constraint{
				Name:       "fk_" + table + "_" + c.Name,
				Kind:       "foreign_key",
				Definition: fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s ON DELETE SET NULL", c.Name, c.References),
			})
		}
	}
	var indexes []domain.Index
	for _, name := range indexedColumns {
		if present[name] {
			indexes = append(indexes, domain.Index{Name: "idx_" + table + "_" + name, Columns: []string{name}})
		}
	}
	return domain.SchemaDefinition{Table: table, Columns: cols, Indexes: indexes, Constraints: constraints}
}

type schemaView struct {
	Schema  string
	Table   string
	Lines   []string
	Indexes []domain.Index
}

func definitionLines(def domain.SchemaDefinition) []string {
	lines := make([]string, 0, len(def.Columns)+len(def.Constraints))
	for _, c := range def.Columns {
		parts := []string{c.Name, c.Type}
		if c.PrimaryKey {
			parts = append(parts, "PRIMARY KEY")
		} else if !c.Nullable {
			parts = append(parts, "NOT NULL")
		}
		if c.Default != "" {
			parts = append(parts, "DEFAULT "+c.Default)
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	for _, c := range def.Constraints {
		lines = append(lines, "CONSTRAINT "+c.Name+" "+c.Definition)
	}
	return lines
}
