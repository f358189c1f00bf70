// cmd/promote.go
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bodocache/bodocache/planner"
)

var (
	promoteStaged  string
	promoteRuntime string
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote the staged config over the runtime config",
	Run: func(cmd *cobra.Command, args []string) {
		if err := planner.PromoteConfig(promoteStaged, promoteRuntime); err != nil {
			logrus.Fatalf("promote config: %v", err)
		}
		logrus.Infof("promoted %s -> %s", promoteStaged, promoteRuntime)
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteStaged, "staged", "configs/staged.yaml", "Staged config path")
	promoteCmd.Flags().StringVar(&promoteRuntime, "runtime", "configs/runtime.yaml", "Runtime config path")
	rootCmd.AddCommand(promoteCmd)
}
