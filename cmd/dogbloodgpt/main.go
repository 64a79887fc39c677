// Command dogbloodgpt runs the DogBloodGPT API.
//
//	@title						DogBloodGPT API
//	@version					1.0
//	@description				Canine blood test analysis with credits, reports and follow-up chat.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "dogbloodgpt",
		Short:         "DogBloodGPT backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
