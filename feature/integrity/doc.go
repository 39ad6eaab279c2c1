// Package integrity scans the ledger for state the engine should never leave
// behind and repairs what can be repaired without a person deciding.
//
// # Checks Provided
//
//   - Links: mirror pairs whose quantities diverged, links that dangle, point
//     into the same registry or are not reciprocal, and intermediates that
//     have no linked item.
//   - Recipes: recipes whose result or materials no longer exist.
//   - Schema: the connected database has every column the ledger models declare.
//
// # Repairs
//
// Diverged pairs are resynced from the raw side through the coordinator, so
// the fix is recorded in history like any other change. Links into the
// entry's own registry are cleared. Everything else is listed as manual,
// including dangling links, which may point at an entry not created yet.
// Repairs only run when confirmed and not in dry-run mode.
//
// # HTTP Endpoints
//
//   - GET /integrity : Returns the report and its repair plan (supports ?refresh=true).
//   - GET /integrity/schema : Runs the schema check.
//   - POST /integrity/fix : Applies the repair plan ({"dry_run": bool, "confirm": bool}).
package integrity
