// Command umap runs UMAP embeddings and k-means clusterings on CSV files.
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	umap "github.com/nozzle/umapkit"
	"github.com/nozzle/umapkit/internal/parallel"
	"github.com/nozzle/umapkit/monitoring"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "umap",
		Short: "Dimensionality reduction and clustering of numeric matrices",
		Long: `umap reads a numeric CSV matrix (one observation per row, no header)
and either embeds it with UMAP or clusters it with k-means.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("metrics", false, "Print run metrics to stderr when done")
	rootCmd.PersistentFlags().Int("max-goroutines", 0, "Cap on concurrently running workers (0 starts one goroutine per thread)")

	embedCmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed a matrix with UMAP",
		RunE:  runEmbed,
	}
	embedCmd.Flags().StringP("input", "i", "", "Input CSV file (required)")
	embedCmd.Flags().StringP("output", "o", "embedding.csv", "Output CSV file")
	embedCmd.Flags().StringP("config", "c", "", "YAML file with embedding options")
	_ = embedCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(embedCmd)

	kmeansCmd := &cobra.Command{
		Use:   "kmeans",
		Short: "Cluster a matrix with k-means",
		RunE:  runKmeans,
	}
	kmeansCmd.Flags().StringP("input", "i", "", "Input CSV file (required)")
	kmeansCmd.Flags().IntP("centers", "k", 2, "Number of clusters")
	kmeansCmd.Flags().String("init", umap.InitKmeansPP, "Initialization: random, kmeans++, pca_partition or none")
	kmeansCmd.Flags().String("refine", umap.RefineHartiganWong, "Refinement: hartigan_wong, lloyd or minibatch")
	kmeansCmd.Flags().StringP("config", "c", "", "YAML file with k-means options")
	kmeansCmd.Flags().String("centers-out", "centers.csv", "Output CSV file for the centres")
	kmeansCmd.Flags().String("clusters-out", "clusters.csv", "Output CSV file for the assignments")
	_ = kmeansCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(kmeansCmd)

	defaultsCmd := &cobra.Command{
		Use:   "defaults [embed|kmeans]",
		Short: "Print the default options as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDefaults,
	}
	rootCmd.AddCommand(defaultsCmd)

	return rootCmd
}

func newLogger(cmd *cobra.Command) logrus.FieldLogger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newExecutor(cmd *cobra.Command) parallel.Executor {
	limit, _ := cmd.Flags().GetInt("max-goroutines")
	if limit <= 0 {
		return nil
	}
	return parallel.Pool{Size: limit}
}

func newMetrics(cmd *cobra.Command) (*monitoring.Metrics, func() error) {
	enabled, _ := cmd.Flags().GetBool("metrics")
	if !enabled {
		return nil, func() error { return nil }
	}
	reg := prometheus.NewRegistry()
	return monitoring.NewMetrics(reg), func() error {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
				return err
			}
		}
		return nil
	}
}

func runEmbed(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := umap.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = umap.LoadConfig(configPath); err != nil {
			return err
		}
	}

	data, err := loadCSV[float32](input)
	if err != nil {
		return errors.Wrapf(err, "load %s", input)
	}

	logger := newLogger(cmd)
	logger.WithField("action", "embed").WithField("observations", len(data)).
		WithField("dimensions", len(data[0])).Info("loaded data")

	cfg.Logger = logger
	metrics, dump := newMetrics(cmd)
	cfg.Metrics = metrics
	cfg.Executor = newExecutor(cmd)
	if verbose {
		cfg.ProgressCallback = func(epoch, total int) {
			if epoch%10 == 0 || epoch == total {
				logger.WithField("action", "embed").Debugf("epoch %d/%d", epoch, total)
			}
		}
	}

	embedding, err := umap.New(cfg).FitTransform(data)
	if err != nil {
		return err
	}
	if err := saveCSV(output, embedding); err != nil {
		return errors.Wrapf(err, "save %s", output)
	}
	logger.WithField("action", "embed").WithField("output", output).Info("saved embedding")
	return dump()
}

func runKmeans(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	ncenters, _ := cmd.Flags().GetInt("centers")
	init, _ := cmd.Flags().GetString("init")
	refine, _ := cmd.Flags().GetString("refine")
	configPath, _ := cmd.Flags().GetString("config")
	centersOut, _ := cmd.Flags().GetString("centers-out")
	clustersOut, _ := cmd.Flags().GetString("clusters-out")

	cfg := umap.DefaultKmeansConfig()
	if configPath != "" {
		var err error
		if cfg, err = umap.LoadKmeansConfig(configPath); err != nil {
			return err
		}
	}

	data, err := loadCSV[float64](input)
	if err != nil {
		return errors.Wrapf(err, "load %s", input)
	}

	logger := newLogger(cmd)
	cfg.Logger = logger
	metrics, dump := newMetrics(cmd)
	cfg.Metrics = metrics
	cfg.Executor = newExecutor(cmd)

	res, err := cfg.Run(data, ncenters, init, refine)
	if err != nil {
		return err
	}
	logger.WithField("action", "kmeans").WithField("status", res.Status).
		WithField("iterations", res.Iterations).WithField("sizes", res.Sizes).Info("clustered data")

	if err := saveCSV(centersOut, res.Centers); err != nil {
		return errors.Wrapf(err, "save %s", centersOut)
	}
	clusters := make([][]int, len(res.Clusters))
	for i, c := range res.Clusters {
		clusters[i] = []int{c}
	}
	if err := saveCSV(clustersOut, clusters); err != nil {
		return errors.Wrapf(err, "save %s", clustersOut)
	}
	return dump()
}

func runDefaults(cmd *cobra.Command, args []string) error {
	var defaults any = umap.DefaultConfig()
	if len(args) == 1 {
		switch args[0] {
		case "embed":
		case "kmeans":
			defaults = umap.DefaultKmeansConfig()
		default:
			return errors.Errorf("unknown facility %q", args[0])
		}
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(defaults)
}
