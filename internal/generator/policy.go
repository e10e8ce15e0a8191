package generator

import (
	"context"
	"fmt"

	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

// Policy emits row level security policies for the table produced by the
// schema step of the same run.
type Policy struct {
	Settings Settings
}

func (g Policy) Generate(_ context.Context, in Input) (*domain.GeneratedArtifact, error) {
	schema, ok := in.latest(domain.ArtifactTableSchema)
	if !ok || schema.SchemaDefinition == nil || schema.SchemaDefinition.Table == "" {
		return nil, fmt.Errorf("policy generation needs a table schema produced earlier in this build")
	}
	lower := in.lower()
	roles := prompt.Roles.All(lower)
	if len(roles) == 0 {
		roles = []string{g.Settings.DefaultRole}
	}
	def := g.Define(*schema.SchemaDefinition, roles)
	code, err := render("policy.sql.tmpl", policyView{
		Schema:   g.Settings.SchemaName,
		Table:    def.Table,
		Policies: def.Policies,
	})
	if err != nil {
		return nil, err
	}
	return &domain.GeneratedArtifact{
		ArtifactType:     domain.ArtifactRLSPolicy,
		ArtifactName:     def.Table + "_policies",
		GeneratedCode:    code,
		SchemaDefinition: &def,
		LinkedModules:    prompt.LinkedModules.All(lower),
	}, nil
}

// Define derives the policy list for table and roles. Public users may insert
// rows they own and read everything; admins get every command; other roles
// get read access gated on the role table.
func (g Policy) Define(table domain.SchemaDefinition, roles []string) domain.SchemaDefinition {
	owned := false
	for _, c := range table.Columns {
		if c.Name == "user_id" {
			owned = true
		}
	}
	var policies []domain.Policy
	for _, role := range roles {
		switch role {
		case "public":
			check := "auth.uid() IS NOT NULL"
			if owned {
				check = "auth.uid() = user_id"
			}
			policies = append(policies,
				domain.Policy{Name: table.Table + "_public_insert", Role: role, Command: "INSERT", WithCheck: check},
				domain.Policy{Name: table.Table + "_public_select", Role: role, Command: "SELECT", Using: "true"},
			)
		case "admin":
			policies = append(policies, domain.Policy{
				Name: table.Table + "_admin_all", Role: role, Command: "ALL", Using: g.hasRole(role), WithCheck: g.hasRole(role),
			})
		default:
			policies = append(policies, domain.Policy{
				Name: table.Table + "_" + role + "_select", Role: role, Command: "SELECT", Using: g.hasRole(role),
			})
		}
	}
	return domain.SchemaDefinition{Table: table.Table, Policies: policies}
}

func (g Policy) hasRole(role string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE user_id = auth.uid() AND role = '%s')", g.Settings.RoleTable, role)
}

type policyView struct {
	Schema   string
	Table    string
	Policies []domain.Policy
}
