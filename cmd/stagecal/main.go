// Command stagecal serves the booking calendar API.
package main

import (
	"os"

	"github.com/stagecal/stagecal/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
