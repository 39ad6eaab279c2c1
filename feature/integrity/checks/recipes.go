package checks

import (
	"stock-ledger/core/ledger"
)

// RecipeIssue is a recipe that cannot be resolved against the registries.
type RecipeIssue struct {
	Result           ledger.Identity `json:"result"`
	ResultMissing    bool            `json:"result_missing"`
	MissingMaterials []string        `json:"missing_materials"`
}

// CheckRecipes reports recipes whose result or materials do not exist.
func CheckRecipes(snap Snapshot) []RecipeIssue {
	index := snap.Index()
	issues := []RecipeIssue{}

	for _, r := range snap.Recipes {
		issue := RecipeIssue{Result: r.Result(), MissingMaterials: []string{}}
		if _, ok := index[r.Result()]; !ok {
			issue.ResultMissing = true
		}
		for _, line := range r.Materials {
			if _, ok := index[line.Identity()]; !ok {
				issue.MissingMaterials = append(issue.MissingMaterials, line.Name)
			}
		}
		if issue.ResultMissing || len(issue.MissingMaterials) > 0 {
			issues = append(issues, issue)
		}
	}
	return issues
}
