// Command ansilod boots an Ansilo data federation node: it loads a
// catalog of entities and data sources from YAML, serves SQLIL-compiled
// queries over a local Postgres FDW bridge, and exposes a REST API for
// health and stats.
package main

func main() {
	Execute()
}
