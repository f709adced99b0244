// Command gherkinsync keeps Gherkin feature files in step with remote test
// case work items.
package main

import "github.com/mesh-intelligence/gherkinsync/internal/cli"

func main() {
	cli.Execute()
}
