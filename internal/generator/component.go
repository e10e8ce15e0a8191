package generator

import (
	"context"
	"path"
	"strings"

	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

var componentSuffix = map[string]string{
	prompt.KindForm:      "Form",
	prompt.KindDashboard: "Dashboard",
	prompt.KindGeneric:   "Panel",
}

// formFields is the fixed shape a generated form submits.
var formFields = []string{"title", "description", "category", "region"}

// Component emits React source for a form, a dashboard or a generic panel.
// It does not check that the table it queries exists.
type Component struct {
	Settings Settings
}

func (g Component) Generate(_ context.Context, in Input) (*domain.GeneratedArtifact, error) {
	lower := in.lower()
	kind := prompt.ComponentKinds.First(lower, prompt.KindGeneric)
	entity := prompt.EntityName(in.Request.Prompt, g.Settings.DefaultEntity)
	name := prompt.Pascal(entity) + componentSuffix[kind]
	category := prompt.ComponentCategories.First(lower, prompt.CategoryShared)
	view := componentView{
		Name:   name,
		Kind:   kind,
		Table:  ComponentTable(name, kind),
		Fields: formFields,
		Title:  strings.ReplaceAll(entity, "_", " "),
	}
	code, err := render("component.tsx.tmpl", view)
	if err != nil {
		return nil, err
	}
	return &domain.GeneratedArtifact{
		ArtifactType:  domain.ArtifactComponent,
		ArtifactName:  name,
		FilePath:      strPtr(path.Join(g.Settings.ComponentsRoot, category, name+".tsx")),
		GeneratedCode: code,
		LinkedModules: prompt.LinkedModules.All(lower),
	}, nil
}

// ComponentTable derives the table a component reads or writes by removing
// the first "form" or "dashboard" from its lower-cased name. Word separators
// are lost, so the result may not match the schema table.
func ComponentTable(name, kind string) string {
	switch kind {
	case prompt.KindForm:
		return strings.Replace(strings.ToLower(name), "form", "", 1)
	case prompt.KindDashboard:
		return strings.Replace(strings.ToLower(name), "dashboard", "", 1)
	}
	return ""
}

type componentView struct {
	Name   string
	Kind   string
	Table  string
	Title  string
	Fields []string
}
