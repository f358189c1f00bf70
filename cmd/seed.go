// cmd/seed.go
package cmd

import (
	"math/rand"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bodocache/bodocache/planner"
	"github.com/bodocache/bodocache/store"
)

var (
	seedRoot      string
	seedModel     string
	seedVersion   string
	seedLayers    int
	seedPages     int64
	seedPageBytes int64
	seedWorkers   int
	seedSeed      int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a segment root with synthetic pages",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := store.NewSegmentedStore(seedRoot)
		if err != nil {
			logrus.Fatalf("open segment root: %v", err)
		}

		var g errgroup.Group
		g.SetLimit(seedWorkers)
		for layer := 0; layer < seedLayers; layer++ {
			layer := layer
			g.Go(func() error {
				rng := rand.New(rand.NewSource(seedSeed + int64(layer)))
				data := make([]byte, seedPageBytes)
				for pid := int64(0); pid < seedPages; pid++ {
					rng.Read(data)
					if err := st.WritePage(seedModel, seedVersion, layer, pid, seedPageBytes, data); err != nil {
						return err
					}
				}
				logrus.Debugf("seeded layer %d with %d pages", layer, seedPages)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logrus.Fatalf("seed segments: %v", err)
		}
		logrus.Infof("seeded %d layers x %d pages x %dKB under %s",
			seedLayers, seedPages, seedPageBytes/1024, seedRoot)
	},
}

// seedPlanSegments writes pages covering every range in a plan, used by the
// run command's end-to-end execution.
func seedPlanSegments(st *store.SegmentedStore, plan []planner.PlanOp) error {
	var g errgroup.Group
	g.SetLimit(seedWorkers)
	for i := range plan {
		op := plan[i]
		g.Go(func() error {
			pageBytes := op.PageBytes
			if pageBytes <= 0 {
				pageBytes = 256 * 1024
			}
			rng := rand.New(rand.NewSource(int64(op.Layer)<<32 ^ op.StartPID))
			data := make([]byte, pageBytes)
			for pid := op.StartPID; pid <= op.EndPID; pid++ {
				rng.Read(data)
				if err := st.WritePage("m70b", "v1", op.Layer, pid, pageBytes, data); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedRoot, "root", "segments", "Segment root directory")
	f.StringVar(&seedModel, "model", "m70b", "Model id")
	f.StringVar(&seedVersion, "version", "v1", "Model version")
	f.IntVar(&seedLayers, "layers", 8, "Layers to seed")
	f.Int64Var(&seedPages, "pages", 64, "Pages per layer")
	f.Int64Var(&seedPageBytes, "page-bytes", 256*1024, "Bytes per page")
	f.IntVar(&seedWorkers, "workers", 4, "Concurrent seed workers")
	f.Int64Var(&seedSeed, "seed", 7, "Content seed")

	rootCmd.AddCommand(seedCmd)
}
