// cmd/serve.go
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bodocache/bodocache/service"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP plan service",
	Run: func(cmd *cobra.Command, args []string) {
		srv := service.NewServer(logrus.StandardLogger())
		if err := srv.ListenAndServe(serveAddr); err != nil {
			logrus.Fatalf("planner service: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
