package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/leodido/cpufeatures"
	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
)

// Build metadata injected via ldflags.
// When built without ldflags (e.g., plain `go build`), these remain
// at their zero values and the version command omits them gracefully.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cpufeatures",
		Short: "CPU feature tags for workload schedulers",
		Long: `cpufeatures turns /proc/cpuinfo into scheduler feature tags.

It reports the CPU vendor, a short model name, the cache size and the
supported ISA extensions as VENDOR::, MODEL::, CACHE:: and ISA:: tags,
optionally adds PCI::GPU:: tags for known accelerators, and merges those
tags into existing node and job feature lists.`,
		SilenceUsage: true,
	}

	root.AddCommand(probeCmd())
	root.AddCommand(tagsCmd())
	root.AddCommand(summarizeCmd())
	root.AddCommand(jobFilterCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(ownedCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(isaCmd())
	root.AddCommand(devicesCmd())
	root.AddCommand(versionCmd())
	return root
}

// ProbeOptions defines flags for the probe subcommand.
type ProbeOptions struct {
	Config   string       `flag:"config" flagshort:"c" flagdescr:"YAML configuration file"`
	CPUInfo  string       `flag:"cpuinfo" flagdescr:"cpuinfo file to parse (default /proc/cpuinfo)"`
	ISATable string       `flag:"isa-table" flagdescr:"ISA table version (v1, v2 or a custom one)"`
	Bus      bool         `flag:"bus" flagdescr:"Add tags for known PCI devices"`
	Format   outputFormat `flag:"format" flagshort:"o" flagdescr:"Output format: text, json, yaml, cbor" flagcustom:"true"`
	Verbose  bool         `flag:"verbose" flagshort:"v" flagdescr:"Log diagnostics to stderr"`
}

func (o *ProbeOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *ProbeOptions) DefineFormat(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	return defineFormat(fieldValue, descr)
}

func (o *ProbeOptions) DecodeFormat(input any) (any, error) {
	return decodeFormat(input)
}

func probeCmd() *cobra.Command {
	opts := &ProbeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Parse cpuinfo and display the detected features",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			r, err := detect(c, detectRequest{
				config:   opts.Config,
				cpuinfo:  opts.CPUInfo,
				isaTable: opts.ISATable,
				bus:      opts.Bus,
				verbose:  opts.Verbose,
			})
			if err != nil {
				return err
			}
			if opts.Format == formatText {
				fmt.Fprint(c.OutOrStdout(), r)
				return nil
			}
			return encode(c.OutOrStdout(), opts.Format, r.Summary())
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// TagsOptions defines flags for the tags subcommand.
type TagsOptions struct {
	Config   string `flag:"config" flagshort:"c" flagdescr:"YAML configuration file"`
	CPUInfo  string `flag:"cpuinfo" flagdescr:"cpuinfo file to parse (default /proc/cpuinfo)"`
	ISATable string `flag:"isa-table" flagdescr:"ISA table version (v1, v2 or a custom one)"`
	Bus      bool   `flag:"bus" flagdescr:"Add tags for known PCI devices"`
	Verbose  bool   `flag:"verbose" flagshort:"v" flagdescr:"Log diagnostics to stderr"`
}

func (o *TagsOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func tagsCmd() *cobra.Command {
	opts := &TagsOptions{}

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Print the feature tags of this host",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			r, err := detect(c, detectRequest{
				config:   opts.Config,
				cpuinfo:  opts.CPUInfo,
				isaTable: opts.ISATable,
				bus:      opts.Bus,
				verbose:  opts.Verbose,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), r.Tags())
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// SummarizeOptions defines flags for the summarize subcommand.
type SummarizeOptions struct {
	Config   string `flag:"config" flagshort:"c" flagdescr:"YAML configuration file"`
	ISATable string `flag:"isa-table" flagdescr:"ISA table version (v1, v2 or a custom one)"`
	Bus      bool   `flag:"bus" flagdescr:"Prefix each line with the tags of known PCI devices"`
	Verbose  bool   `flag:"verbose" flagshort:"v" flagdescr:"Log diagnostics to stderr"`
}

func (o *SummarizeOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func summarizeCmd() *cobra.Command {
	opts := &SummarizeOptions{}

	cmd := &cobra.Command{
		Use:   "summarize FILE...",
		Short: "Print the feature tags of each cpuinfo dump",
		Long: `Print the feature tags of each cpuinfo dump, one line per file.

With --bus the PCI bus of this host is enumerated once and the device tags
are placed before the tags of every file.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.Config)
			if err != nil {
				return err
			}
			if opts.Bus {
				if cfg.Bus == nil {
					cfg.Bus = &cpufeatures.BusConfig{}
				}
				cfg.Bus.Enabled = true
			}
			table, err := resolveISATable(opts.ISATable, cfg)
			if err != nil {
				return err
			}
			logger := newLogger(c.ErrOrStderr(), opts.Verbose)
			detectOpts, err := cfg.DetectOptions(logger)
			if err != nil {
				return err
			}

			devices, err := cpufeatures.DetectDevices(detectOpts...)
			if err != nil {
				fmt.Fprintf(c.ErrOrStderr(), "bus: %v\n", err)
			}

			parserOpts := []cpufeatures.ParserOption{
				cpufeatures.WithParserISATable(table),
				cpufeatures.WithParserLogger(logger),
			}
			if cfg.ChunkSize > 0 {
				parserOpts = append(parserOpts, cpufeatures.WithParserChunkSize(cfg.ChunkSize))
			}
			if cfg.MaxLineSize > 0 {
				parserOpts = append(parserOpts, cpufeatures.WithParserMaxLineSize(cfg.MaxLineSize))
			}
			p := cpufeatures.NewParser(parserOpts...)
			for _, path := range args {
				f, err := p.ParseFile(path)
				if err != nil {
					fmt.Fprintf(c.ErrOrStderr(), "%s: %v\n", path, err)
				}
				fmt.Fprintf(c.OutOrStdout(), "%s:    %s\n", path, cpufeatures.JoinTags(devices, f.Tags()))
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func jobFilterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job-filter REQUEST",
		Short: "Keep the cpufeatures tags of an ampersand-separated job request",
		Long: `Keep the cpufeatures tags of an ampersand-separated job request.

The owned tags are printed comma-separated in request order. When the request
holds no owned tag it is printed unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			fmt.Fprintln(c.OutOrStdout(), cpufeatures.FilterJobFeatures(args[0]))
			return nil
		},
	}
}

// ReconcileOptions defines flags for the reconcile subcommand.
type ReconcileOptions struct {
	New    string             `flag:"new" flagdescr:"Newly detected tags (comma-separated)"`
	Orig   string             `flag:"orig" flagdescr:"Current node tags (comma-separated)"`
	Avail  string             `flag:"avail" flagdescr:"Available node tags (comma-separated)"`
	Policy cpufeatures.Policy `flag:"policy" flagshort:"p" flagdescr:"Reconciliation policy: carry-forward, availability-gated" flagcustom:"true"`
}

func (o *ReconcileOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *ReconcileOptions) DefinePolicy(name, short, descr string, structField reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	fieldPtr := fieldValue.Addr().Interface().(*cpufeatures.Policy)
	*fieldPtr = cpufeatures.PolicyCarryForward
	return enumflag.New(fieldPtr, "policy", cpufeatures.PolicyIdentifiers(), enumflag.EnumCaseInsensitive), descr
}

func (o *ReconcileOptions) DecodePolicy(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return cpufeatures.ParsePolicy(s)
}

func reconcileCmd() *cobra.Command {
	opts := &ReconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge newly detected tags into a node's feature list",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			fmt.Fprintln(c.OutOrStdout(), cpufeatures.Reconcile(opts.New, opts.Orig, opts.Avail, opts.Policy))
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func ownedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owned TAG...",
		Short: "Tell which tags are managed by cpufeatures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			for _, tag := range args {
				status := "no"
				if cpufeatures.IsOwned(tag) {
					status = "yes"
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", tag, status)
			}
			return nil
		},
	}
}

// CheckOptions defines flags for the check subcommand.
type CheckOptions struct {
	Require  string `flag:"require" flagshort:"r" flagdescr:"Job feature request (tags separated by & or ,)" flagrequired:"true"`
	Config   string `flag:"config" flagshort:"c" flagdescr:"YAML configuration file"`
	CPUInfo  string `flag:"cpuinfo" flagdescr:"cpuinfo file to parse (default /proc/cpuinfo)"`
	ISATable string `flag:"isa-table" flagdescr:"ISA table version (v1, v2 or a custom one)"`
	Bus      bool   `flag:"bus" flagdescr:"Add tags for known PCI devices"`
	JSON     bool   `flag:"json" flagshort:"j" flagdescr:"Output in JSON format"`
}

func (o *CheckOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

// CompleteRequire completes the last tag of an & or , separated request.
func (o *CheckOptions) CompleteRequire(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cut := strings.LastIndexAny(toComplete, "&,")
	prefix, current := toComplete[:cut+1], toComplete[cut+1:]

	selected := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(prefix, func(r rune) bool { return r == '&' || r == ',' }) {
		selected[strings.ToLower(strings.TrimSpace(tok))] = true
	}

	var out []string
	for _, candidate := range requireCandidates() {
		if selected[strings.ToLower(candidate)] {
			continue
		}
		if strings.HasPrefix(strings.ToLower(candidate), strings.ToLower(current)) {
			out = append(out, prefix+candidate)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// requireCandidates lists the tags worth suggesting: the open-ended prefixes,
// every ISA extension of the default table and every known device tag.
func requireCandidates() []string {
	out := []string{cpufeatures.PrefixVendor, cpufeatures.PrefixModel, cpufeatures.PrefixCache}
	for _, name := range cpufeatures.DefaultISATable.Names() {
		out = append(out, cpufeatures.PrefixISA+name)
	}
	for _, v := range cpufeatures.DefaultDeviceTable {
		for _, d := range v.Devices {
			if !slices.Contains(out, d.Tag) {
				out = append(out, d.Tag)
			}
		}
	}
	return out
}

func checkCmd() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that this host satisfies a job feature request",
		Long: `Check that this host advertises every cpufeatures tag of a job request.
Tags not owned by cpufeatures are ignored.
Exits with code 0 if all requirements are met, 1 if any are missing.`,
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			r, err := detect(c, detectRequest{
				config:   opts.Config,
				cpuinfo:  opts.CPUInfo,
				isaTable: opts.ISATable,
				bus:      opts.Bus,
			})
			if err != nil {
				return err
			}

			err = cpufeatures.Check(r, opts.Require)
			if err != nil {
				var fe *cpufeatures.FeatureError
				if errors.As(err, &fe) {
					if opts.JSON {
						if err := encode(c.OutOrStdout(), formatJSON, map[string]any{
							"ok":      false,
							"feature": fe.Feature,
							"reason":  fe.Reason,
						}); err != nil {
							return err
						}
						os.Exit(1)
					}
					fmt.Fprintf(c.ErrOrStderr(), "FAIL: %s: %s\n", fe.Feature, fe.Reason)
					os.Exit(1)
				}
				return err
			}

			if opts.JSON {
				return encode(c.OutOrStdout(), formatJSON, map[string]any{"ok": true})
			}
			fmt.Fprintln(c.OutOrStdout(), "OK: all requirements satisfied")
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// ISAOptions defines flags for the isa subcommand.
type ISAOptions struct {
	Config string `flag:"config" flagshort:"c" flagdescr:"YAML configuration file with custom tables"`
}

func (o *ISAOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func isaCmd() *cobra.Command {
	opts := &ISAOptions{}

	cmd := &cobra.Command{
		Use:   "isa",
		Short: "List the ISA tables and the extensions they report",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.Config)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			for _, t := range cpufeatures.ISATables() {
				marker := " "
				if t == cpufeatures.DefaultISATable {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, t)
			}
			for _, version := range sortedKeys(cfg.ISATables) {
				t, err := cpufeatures.NewISATable(version, cfg.ISATables[version]...)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s\n", t)
			}
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// DevicesOptions defines flags for the devices subcommand.
type DevicesOptions struct {
	Config string `flag:"config" flagshort:"c" flagdescr:"YAML configuration file with a device table"`
}

func (o *DevicesOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func devicesCmd() *cobra.Command {
	opts := &DevicesOptions{}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the PCI vendor/device table",
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.Config)
			if err != nil {
				return err
			}
			table, err := cfg.DeviceTable()
			if err != nil {
				return err
			}
			fmt.Fprint(c.OutOrStdout(), table)
			return nil
		},
	}

	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show kernel and tool version",
		RunE: func(c *cobra.Command, args []string) error {
			out := c.OutOrStdout()
			if version != "" {
				fmt.Fprintf(out, "cpufeatures %s", version)
				if commit != "" {
					fmt.Fprintf(out, " (%s)", commit)
				}
				if date != "" {
					fmt.Fprintf(out, " built %s", date)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, "cpufeatures (dev)")
			}

			if release := cpufeatures.KernelRelease(); release != "" {
				fmt.Fprintf(out, "Kernel: %s\n", release)
			}
			return nil
		},
	}
}

type detectRequest struct {
	config   string
	cpuinfo  string
	isaTable string
	bus      bool
	verbose  bool
}

// detect builds detection options from the config file, then lets flags
// override it.
func detect(c *cobra.Command, req detectRequest) (*cpufeatures.Report, error) {
	cfg, err := loadConfig(req.config)
	if err != nil {
		return nil, err
	}
	if req.cpuinfo != "" {
		cfg.CPUInfo = req.cpuinfo
	}
	if req.isaTable != "" {
		cfg.ISATable = req.isaTable
	}
	if req.bus {
		if cfg.Bus == nil {
			cfg.Bus = &cpufeatures.BusConfig{}
		}
		cfg.Bus.Enabled = true
	}

	opts, err := cfg.DetectOptions(newLogger(c.ErrOrStderr(), req.verbose))
	if err != nil {
		return nil, err
	}
	return cpufeatures.DetectWith(opts...)
}

// loadConfig reads the configuration, falling back to defaults when no
// source exists.
func loadConfig(path string) (*cpufeatures.Config, error) {
	cfg, err := cpufeatures.ReadConfig(path)
	if errors.Is(err, cpufeatures.ErrNoConfig) {
		return &cpufeatures.Config{}, nil
	}
	return cfg, err
}

func resolveISATable(version string, cfg *cpufeatures.Config) (*cpufeatures.ISATable, error) {
	if cfg == nil {
		cfg = &cpufeatures.Config{}
	}
	if version != "" {
		cfg.ISATable = version
	}
	return cfg.Table()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
