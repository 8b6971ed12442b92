// Command sentimenta is the terminal dashboard for Sentimenta pipeline runs.
package main

import (
	"os"

	"github.com/sentimenta/dashclient/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
