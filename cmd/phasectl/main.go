package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/Jawbreaker1/phasectl/internal/config"
	"github.com/Jawbreaker1/phasectl/internal/engine"
	"github.com/Jawbreaker1/phasectl/internal/logging"
	"github.com/Jawbreaker1/phasectl/internal/orchestrator"
)

const version = "dev"

func main() {
	atexit.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns 1 for configuration and I/O errors and 0 for any completed run.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "phasectl: %v\n", err)
		return 1
	}
	return 0
}

type commonFlags struct {
	configPath string
	profile    string
	outDir     string
	logLevel   string
	workload   string
	cores      int
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	common := &commonFlags{}
	root := &cobra.Command{
		Use:           "phasectl",
		Short:         "Drive a simulation through fast-forward, warmup and ROI phases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&common.configPath, "config", "", "Run config JSON merged over config/default.json")
	pf.StringVar(&common.profile, "profile", "", "Profile name under config/profiles/")
	pf.StringVar(&common.outDir, "outdir", "", "Directory that receives one sub-directory per run")
	pf.StringVar(&common.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	pf.StringVar(&common.workload, "workload", "", "Workload description JSON for the synthetic engine")
	pf.IntVar(&common.cores, "cores", 1, "Number of simulated cores")

	root.AddCommand(newSampleCmd(common, stdout))
	root.AddCommand(newCheckpointCmd(common, stdout))
	root.AddCommand(newInspectCmd(stdout))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "phasectl %s\n", version)
		},
	})
	return root
}

// load merges config files, then overlays the flags the user actually set.
func (c *commonFlags) load(cmd *cobra.Command) (config.Config, error) {
	profilePath := ""
	if c.profile != "" {
		profilePath = config.ProfilePath(c.profile)
	}
	cfg, _, err := config.Load("", profilePath, c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("outdir") {
		cfg.Output.Dir = c.outDir
	}
	if flags.Changed("log-level") {
		cfg.Output.LogLevel = c.logLevel
	}
	if flags.Changed("workload") {
		cfg.Engine.WorkloadPath = c.workload
		cfg.Engine.Workload = nil
	}
	if flags.Changed("cores") {
		cfg.Engine.Cores = c.cores
	}
	return cfg, nil
}

func newSampleCmd(common *commonFlags, stdout io.Writer) *cobra.Command {
	var (
		sample    bool
		initFF    int
		maxROIs   int
		cont      bool
		noKVM     bool
		startFrom string
	)
	cmd := &cobra.Command{
		Use:   "sample [ff_interval warmup_interval roi_interval]",
		Short: "Fast-forward to the benchmark, then measure it whole or by periodic sampling",
		Long: "Intervals are in millions of instructions. With --sample the run iterates " +
			"fast-forward, warmup and ROI windows until the benchmark ends or --max-rois is reached.",
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := common.load(cmd)
			if err != nil {
				return err
			}
			cfg.Mode = config.ModeSampling
			flags := cmd.Flags()
			if flags.Changed("sample") {
				cfg.Sampling.Enabled = sample
			}
			if flags.Changed("init-ff") {
				cfg.Sampling.InitFastForward = &initFF
			}
			if flags.Changed("max-rois") {
				cfg.Sampling.MaxROIs = &maxROIs
			}
			if flags.Changed("continue") {
				cfg.Sampling.Continue = cont
			}
			if flags.Changed("nokvm") {
				cfg.Engine.NoKVM = noKVM
			}
			if flags.Changed("start-from") {
				cfg.Checkpoint.StartFrom = startFrom
			}
			if err := applyIntervals(&cfg, args); err != nil {
				return err
			}
			return execute(cfg, stdout)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&sample, "sample", false, "Enable periodic sampling; requires the three interval arguments")
	f.IntVar(&initFF, "init-ff", 0, "Initial fast-forward before sampling or the whole-benchmark ROI (millions)")
	f.IntVar(&maxROIs, "max-rois", 0, "Stop after this many completed ROIs")
	f.BoolVar(&cont, "continue", false, "Fast-forward the rest of the benchmark after --max-rois instead of stopping")
	f.BoolVar(&noKVM, "nokvm", false, "Fast-forward on the atomic model instead of KVM")
	f.StringVar(&startFrom, "start-from", "", "Begin from a post-boot checkpoint instead of booting")
	return cmd
}

func applyIntervals(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) != 3 {
		return &config.ConfigError{Field: "sampling", Reason: "sample mode requires three positional args: ff_interval warmup_interval roi_interval"}
	}
	names := []string{"ff_interval", "warmup_interval", "roi_interval"}
	values := make([]int, len(args))
	for i, raw := range args {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return &config.ConfigError{Field: names[i], Reason: fmt.Sprintf("not an integer: %q", raw)}
		}
		values[i] = v
	}
	cfg.Sampling.FastForward = &values[0]
	cfg.Sampling.Warmup = &values[1]
	cfg.Sampling.ROI = &values[2]
	return nil
}

func newCheckpointCmd(common *commonFlags, stdout io.Writer) *cobra.Command {
	var (
		roiDir          string
		takeCheckpoints int
		path            string
		restore         string
		warmup          int
		insts           int
		initCheckpoint  string
		startFrom       string
		o3              bool
	)
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Create checkpoints, or measure an ROI from a restored checkpoint",
		Long: "Without checkpoint flags the whole ROI is measured on the timing model. " +
			"Instruction counts are in millions.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := common.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Mode == config.ModeSampling {
				cfg.Mode = ""
			}
			flags := cmd.Flags()
			if flags.Changed("checkpoint-roi") {
				cfg.Checkpoint.ROIDir = roiDir
			}
			if flags.Changed("take-checkpoints") {
				cfg.Checkpoint.TakeCheckpoints = &takeCheckpoints
			}
			if flags.Changed("checkpoint-path") {
				cfg.Checkpoint.Path = path
			}
			if flags.Changed("restore") {
				cfg.Checkpoint.Restore = restore
			}
			if flags.Changed("warmup") {
				cfg.Checkpoint.Warmup = &warmup
			}
			if flags.Changed("insts") {
				cfg.Checkpoint.Insts = &insts
			}
			if flags.Changed("init-checkpoint") {
				cfg.Checkpoint.InitCheckpoint = initCheckpoint
			}
			if flags.Changed("start-from") {
				cfg.Checkpoint.StartFrom = startFrom
			}
			if flags.Changed("o3") {
				cfg.Engine.O3 = o3
			}
			return execute(cfg, stdout)
		},
	}
	f := cmd.Flags()
	f.StringVar(&roiDir, "checkpoint-roi", "", "Save one checkpoint into this directory at ROI start, then stop")
	f.IntVar(&takeCheckpoints, "take-checkpoints", 0, "Save a checkpoint at ROI start and every N million instructions")
	f.StringVar(&path, "checkpoint-path", "", "Directory for --take-checkpoints (default from config)")
	f.StringVar(&restore, "restore", "", "Checkpoint directory to restore and measure from")
	f.IntVar(&warmup, "warmup", 0, "Warmup after restore before stats are reset (millions)")
	f.IntVar(&insts, "insts", 0, "Measure this many million instructions after warmup, then stop")
	f.StringVar(&initCheckpoint, "init-checkpoint", "", "Save a post-boot checkpoint into this directory, then stop")
	f.StringVar(&startFrom, "start-from", "", "Begin from a post-boot checkpoint")
	f.BoolVar(&o3, "o3", false, "Measure on the O3 model instead of timing")
	return cmd
}

// execute validates cfg, prepares the run directory and drives the run.
func execute(cfg config.Config, stdout io.Writer) error {
	level, err := logging.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return &config.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	log := logging.New(stdout, level, "")
	logging.SetDefault(log)

	plan, err := cfg.Resolve()
	if err != nil {
		return err
	}
	workload, err := cfg.ResolveWorkload()
	if err != nil {
		return err
	}
	if err := orchestrator.Preflight(plan); err != nil {
		return err
	}

	runID := orchestrator.NewRunID()
	paths, err := orchestrator.EnsureRunLayout(cfg.Output.Dir, runID)
	if err != nil {
		return err
	}
	arts := &runArtifacts{
		paths: paths,
		log:   log,
		report: orchestrator.Report{
			RunID:       runID,
			Mode:        plan.Mode,
			StartModel:  plan.StartModel,
			SwitchModel: plan.SwitchModel,
			Cores:       plan.Cores,
			ExitCause:   "not started",
		},
	}
	atexit.Register(func() { _ = arts.flush() })

	if err := config.Save(paths.ConfigPath, cfg); err != nil {
		return arts.finish(nil, err)
	}

	restoreFrom := plan.Checkpoint.RestoreDir
	if restoreFrom == "" {
		restoreFrom = plan.Checkpoint.StartFrom
	}
	if restoreFrom != "" && plan.Mode != config.ModeRestore {
		log.Infof("###Starting from post-boot checkpoint: %s", restoreFrom)
	}
	syn, err := engine.NewSynthetic(engine.SyntheticConfig{
		Workload:    workload,
		StartModel:  plan.StartModel,
		SwitchModel: plan.SwitchModel,
		Cores:       plan.Cores,
		StatsPath:   paths.StatsPath,
		RestoreFrom: restoreFrom,
	})
	if err != nil {
		return arts.finish(nil, fmt.Errorf("build engine: %w", err))
	}

	report, runErr := orchestrator.Run(orchestrator.Options{
		Plan:   plan,
		Engine: syn,
		Stats:  syn,
		Logger: log,
		RunLog: orchestrator.NewRunLog(paths.EventsPath, runID, nil),
	})
	if report.Mode == "" {
		return arts.finish(nil, runErr)
	}
	return arts.finish(&report, runErr)
}

// runArtifacts writes report.json and summary.md once per run. execute
// flushes it on return and atexit flushes it on any other exit, so a run
// that fails part way still leaves a report naming the error.
type runArtifacts struct {
	once   sync.Once
	paths  orchestrator.RunPaths
	log    *logging.Logger
	report orchestrator.Report
	err    error
}

// finish records the outcome, flushes, and returns the run error or, failing
// that, the flush error.
func (a *runArtifacts) finish(report *orchestrator.Report, runErr error) error {
	if report != nil {
		a.report = *report
	}
	if runErr != nil {
		a.report.Error = runErr.Error()
	}
	flushErr := a.flush()
	if runErr != nil {
		return runErr
	}
	return flushErr
}

func (a *runArtifacts) flush() error {
	a.once.Do(func() {
		if err := orchestrator.WriteReport(a.paths.ReportPath, a.report); err != nil {
			a.err = err
			return
		}
		if err := orchestrator.WriteSummary(a.paths.SummaryPath, a.report); err != nil {
			a.err = err
			return
		}
		a.log.Infof("Run artifacts: %s", a.paths.Root)
	})
	return a.err
}

func newInspectCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect RUN_DIR",
		Short: "Check a run's event log and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			paths := orchestrator.BuildRunPaths(filepath.Dir(dir), filepath.Base(dir))
			report, err := orchestrator.ReadReport(paths.ReportPath)
			if err != nil {
				return err
			}
			events, err := orchestrator.VerifyRunLog(paths.EventsPath)
			if err != nil {
				return fmt.Errorf("event log %s: %w", paths.EventsPath, err)
			}
			fmt.Fprint(stdout, orchestrator.RenderSummary(report))
			fmt.Fprintf(stdout, "\nEvent log: %d events, sequence and ticks monotonic\n", len(events))
			return nil
		},
	}
}
