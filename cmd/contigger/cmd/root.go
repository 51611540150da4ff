package cmd

import (
	"fmt"
	"os"

	logging "github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

var log = logging.MustGetLogger("contigger")

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "contigger",
	Short: "De Bruijn graph contig assembler",
	Long: `contigger - de Bruijn graph construction and read pathing

A thin command-line wrapper around the contigger library: counts K-mers,
builds the K-mer dictionary and edges, optionally repairs gaps and short
overlaps, assembles the bidirected graph, and paths every read onto it.
`,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "print progress information")
}

// checkError logs a fatal error and exits, mirroring the teacher's
// cmd.checkError: library packages never call os.Exit themselves, only
// this CLI shell does.
func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
