package generator

import (
	"context"
	"path"

	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

// Integration emits an edge function stub whose handler wraps its work in a
// try/catch returning {success, data|error}.
type Integration struct {
	Settings Settings
}

func (g Integration) Generate(_ context.Context, in Input) (*domain.GeneratedArtifact, error) {
	lower := in.lower()
	kind := prompt.IntegrationKinds.First(lower, prompt.IntegrationService)
	entity := prompt.EntityName(in.Request.Prompt, g.Settings.DefaultEntity)
	name := prompt.Camel(entity + "_" + kind)
	code, err := render("integration.ts.tmpl", integrationView{Name: name, Kind: kind, Entity: entity})
	if err != nil {
		return nil, err
	}
	return &domain.GeneratedArtifact{
		ArtifactType:  domain.ArtifactIntegration,
		ArtifactName:  name,
		FilePath:      strPtr(path.Join(g.Settings.IntegrationsRoot, prompt.Kebab(name), "index.ts")),
		GeneratedCode: code,
		LinkedModules: prompt.LinkedModules.All(lower),
	}, nil
}

type integrationView struct {
	Name   string
	Kind   string
	Entity string
}
