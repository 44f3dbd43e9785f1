// Command pippin-demo exercises pkg/fsrepo against a real directory: create
// a partition, append note commits, inspect its history, collapse divergent
// tips, and serve a read-only status page — a cobra + viper command tree
// over one concrete pkg/fsrepo.Backend, in the teacher's own cmd/cli idiom.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pippin-db/pippin/core"
	"github.com/pippin-db/pippin/pkg/fsrepo"
	"github.com/pippin-db/pippin/pkg/logging"
	"github.com/pippin-db/pippin/pkg/metrics"
)

var (
	flagDir         string
	flagPrefix      string
	flagName        string
	flagPartitionID uint32
	flagCacheSize   int
	flagLogLevel    string
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pippin-demo",
		Short: "Exercise a pkg/fsrepo-backed Pippin partition from the command line",
	}
	root.PersistentFlags().StringVar(&flagDir, "dir", "./pippin-data", "repo directory")
	root.PersistentFlags().StringVar(&flagPrefix, "prefix", "demo", "snapshot/commit-log file prefix")
	root.PersistentFlags().StringVar(&flagName, "name", "demo", "partition name (header, 1-16 bytes)")
	root.PersistentFlags().Uint32Var(&flagPartitionID, "partition-id", 1, "24-bit partition id used for element id allocation")
	root.PersistentFlags().IntVar(&flagCacheSize, "cache-entries", 256, "read cache size")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "logrus level")
	_ = viper.BindPFlag("repo.path", root.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("repo.name", root.PersistentFlags().Lookup("name"))
	_ = viper.BindPFlag("repo.cache_entries", root.PersistentFlags().Lookup("cache-entries"))
	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(initCmd(), commitCmd(), logCmd(), mergeCmd(), serveCmd())
	return root
}

func openControl() (*fsrepo.Control, *fsrepo.Backend, error) {
	_, clog, err := logging.New(flagLogLevel, "")
	if err != nil {
		return nil, nil, err
	}
	backend, err := fsrepo.NewBackend(flagDir, flagPrefix, flagCacheSize, false, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	rec := metrics.Noop()
	ctrl := fsrepo.NewControl(backend, noteFactory, core.NewCountingSnapshotPolicy(10), clog, rec)
	return ctrl, backend, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new partition with a genesis snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openControl()
			if err != nil {
				return err
			}
			p, err := core.CreatePartition(ctrl, flagName, flagPartitionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created partition %q (id=%d) in %s\n", p.Name(), p.PartitionID(), flagDir)
			return nil
		},
	}
}

func commitCmd() *cobra.Command {
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "commit <text>",
		Short: "Append a note element as a new commit on the current tip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openControl()
			if err != nil {
				return err
			}
			p, err := core.OpenPartition(ctrl, true)
			if err != nil {
				return err
			}
			tip, err := p.Tip()
			if err != nil {
				return err
			}
			mut := tip.CloneMut(flagPartitionID)
			if _, err := mut.Insert(nil, &noteElement{Text: args[0]}); err != nil {
				return err
			}
			changed, err := p.PushState(mut)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "no-op: nothing changed")
				return nil
			}
			if err := p.WriteFast(); err != nil {
				return err
			}
			if snapshot || p.RequireSnapshot() {
				if err := p.WriteSnapshot(); err != nil {
					return err
				}
			}
			newTip, err := p.Tip()
			if err != nil {
				return err
			}
			cidStr, _ := fsrepo.CIDForSum(newTip.Statesum())
			fmt.Fprintf(cmd.OutOrStdout(), "committed, new tip %s\n", cidStr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "force a snapshot after this commit")
	return cmd
}

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Walk the tip's ancestry and print each state's notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openControl()
			if err != nil {
				return err
			}
			p, err := core.OpenPartition(ctrl, true)
			if err != nil {
				return err
			}
			tips := p.Tips()
			if len(tips) > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d divergent tips, run `merge` first\n", len(tips))
			}
			seen := map[core.Sum]bool{}
			queue := tips
			for len(queue) > 0 {
				st := queue[0]
				queue = queue[1:]
				sum := st.Statesum()
				if seen[sum] {
					continue
				}
				seen[sum] = true
				cidStr, _ := fsrepo.CIDForSum(sum)
				fmt.Fprintf(cmd.OutOrStdout(), "state %s (commit #%d, %d elements)\n", cidStr, st.Meta().Number, st.Len())
				for _, id := range st.EltIds() {
					if v, ok := st.Get(id); ok {
						if n, ok := v.(*noteElement); ok {
							fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s\n", id, n.Text)
						}
					}
				}
				for _, parentSum := range st.Parents() {
					if parent, err := p.State(parentSum); err == nil {
						queue = append(queue, parent)
					}
				}
			}
			return nil
		},
	}
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Collapse divergent tips with the ancestor-preferring solver chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openControl()
			if err != nil {
				return err
			}
			p, err := core.OpenPartition(ctrl, true)
			if err != nil {
				return err
			}
			solver := core.TwoWaySolverChain{Solvers: []core.Solver{
				&core.AncestorSolver2W{},
				&core.RenamingSolver2W{},
			}}
			if err := p.Merge(&solver, true); err != nil {
				return err
			}
			if err := p.WriteFast(); err != nil {
				return err
			}
			tip, err := p.Tip()
			if err != nil {
				return err
			}
			cidStr, _ := fsrepo.CIDForSum(tip.Statesum())
			fmt.Fprintf(cmd.OutOrStdout(), "merged, new tip %s\n", cidStr)
			return nil
		},
	}
}

type statusView struct {
	Partition string   `json:"partition"`
	Tips      []string `json:"tips"`
	Elements  int      `json:"elements"`
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose a read-only status endpoint and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openControl()
			if err != nil {
				return err
			}
			p, err := core.OpenPartition(ctrl, true)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics.New(reg)

			r := chi.NewRouter()
			r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
				tips := p.Tips()
				view := statusView{Partition: p.Name()}
				total := 0
				for _, t := range tips {
					cidStr, _ := fsrepo.CIDForSum(t.Statesum())
					view.Tips = append(view.Tips, cidStr)
					total += t.Len()
				}
				view.Elements = total
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(view)
			})
			r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

			srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
			fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", addr)
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "listen address")
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
