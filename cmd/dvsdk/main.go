// Command dvsdk compiles queries to FetchXML and runs record operations
// against a Dataverse organization.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dvsdk/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
