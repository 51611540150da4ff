package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// getFlagString, getFlagBool, ... are the same thin
// *cobra.Command.Flags().GetX()-plus-checkError wrappers the wider corpus
// uses throughout its cmd packages, trimmed to the handful of flag types
// this CLI's single subcommand needs.

func getFlagString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	checkError(err)
	return v
}

func getFlagBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	checkError(err)
	return v
}

func getFlagInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	checkError(err)
	return v
}

func getFlagPositiveInt(cmd *cobra.Command, name string) int {
	v := getFlagInt(cmd, name)
	if v <= 0 {
		checkError(fmt.Errorf("value of flag --%s should be positive", name))
	}
	return v
}

func getFlagUint32(cmd *cobra.Command, name string) uint32 {
	v, err := cmd.Flags().GetUint32(name)
	checkError(err)
	return v
}

func getFlagFloat64(cmd *cobra.Command, name string) float64 {
	v, err := cmd.Flags().GetFloat64(name)
	checkError(err)
	return v
}
