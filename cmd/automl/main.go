// Entry point that delegates to the cobra commands of internal/cli.
package main

import (
	"github.com/thalesfsp/automl/internal/cli"
)

func main() {
	cli.Execute()
}
