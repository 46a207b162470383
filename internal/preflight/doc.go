// Package preflight provides readiness checks for the providers, tools and
// directories scenecraft depends on.
//
// These checks run in two contexts:
//   - The "scenecraft preflight" command runs RunAll and renders a table.
//   - The API server and the "stages" command report StageReadiness, which
//     only inspects configuration and PATH and never calls a provider.
package preflight
