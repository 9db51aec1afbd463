// Command docset turns web pages and documents into chunked markdown and
// question-answer datasets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "docset",
	Short:         "Build RAG datasets from web pages and documents",
	Long:          "docset fetches a source, cleans and splits it into chunks, writes them as markdown and generates a question-answer dataset over the chunks.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
