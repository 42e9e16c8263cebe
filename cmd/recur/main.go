// Command recur prints and runs occurrences of cron schedules.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"lesiw.io/recur"
)

var version = "dev"

type flags struct {
	config   string
	location string
	seconds  bool
	count    int
	from     string
	until    string
}

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(out io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "recur",
		Short:         "Compute and run occurrences of cron schedules",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	pf.StringVar(&f.location, "location", "",
		"UTC, Local or a fixed offset like +02:00")
	pf.BoolVarP(&f.seconds, "seconds", "s", false,
		"expressions start with a seconds field")
	root.AddCommand(
		listCmd(&f, "next", false),
		listCmd(&f, "prev", true),
		validCmd(&f),
		parseCmd(&f),
		runCmd(&f),
	)
	return root
}

func (f *flags) load() (recur.Config, error) {
	var c recur.Config
	if f.config != "" {
		var err error
		if c, err = recur.ReadConfig(f.config); err != nil {
			return recur.Config{}, err
		}
	}
	if f.location != "" {
		c.Location = f.location
	}
	return c, nil
}

func (f *flags) engine() (*recur.Engine, recur.Config, error) {
	c, err := f.load()
	if err != nil {
		return nil, c, err
	}
	opts, err := c.Options(os.Stderr)
	if err != nil {
		return nil, c, err
	}
	return recur.New(opts...), c, nil
}

func (f *flags) instant(e *recur.Engine, s string, def time.Time) (
	time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(time.RFC3339, s, e.Location())
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", s, e.Location())
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t, nil
}

func listCmd(f *flags, use string, reverse bool) *cobra.Command {
	short := "Print the next occurrences of a cron expression"
	if reverse {
		short = "Print the previous occurrences of a cron expression"
	}
	cmd := &cobra.Command{
		Use:   use + " EXPR",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := f.engine()
			if err != nil {
				return err
			}
			s, err := recur.ParseCron(args[0], f.seconds)
			if err != nil {
				return err
			}
			start, err := f.instant(e, f.from, time.Now())
			if err != nil {
				return err
			}
			end, err := f.instant(e, f.until, time.Time{})
			if err != nil {
				return err
			}
			var n int
			for t := range e.Get(s, f.count, start, end, reverse) {
				fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
				n++
			}
			if n == 0 {
				return fmt.Errorf("no occurrences")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&f.count, "count", "n", 5, "number of occurrences")
	cmd.Flags().StringVar(&f.from, "from", "", "start time (default now)")
	cmd.Flags().StringVar(&f.until, "until", "", "bound of the search")
	return cmd
}

func validCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "valid EXPR TIME",
		Short: "Report whether a time is an occurrence of a cron expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := f.engine()
			if err != nil {
				return err
			}
			s, err := recur.ParseCron(args[0], f.seconds)
			if err != nil {
				return err
			}
			t, err := f.instant(e, args[1], time.Time{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.Valid(s, t))
			return nil
		},
	}
}

func parseCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "parse EXPR",
		Short: "Print the constraint schedule of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := recur.ParseCron(args[0], f.seconds)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(s)
		},
	}
}

func runCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [EXPR]",
		Short: "Print a line at each occurrence until interrupted",
		Long: "Run prints a line at each occurrence of EXPR, or of every " +
			"job in the configuration file, until interrupted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := f.engine()
			if err != nil {
				return err
			}
			jobs := slices.Clone(c.Jobs)
			if len(args) > 0 {
				jobs = append(jobs, recur.Job{
					Name:    args[0],
					Cron:    args[0],
					Seconds: f.seconds,
				})
			}
			if len(jobs) == 0 {
				return fmt.Errorf("nothing to run")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), c, jobs)
		},
	}
}

// run execs every job on an engine of its own until ctx is done.
func run(ctx context.Context, out io.Writer, c recur.Config,
	jobs []recur.Job) error {
	lines := make(chan string)
	for _, j := range jobs {
		s, err := j.Compile()
		if err != nil {
			return fmt.Errorf("job %q: %w", j.Name, err)
		}
		opts, err := c.Options(os.Stderr)
		if err != nil {
			return err
		}
		e := recur.New(opts...)
		defer e.Close()
		name := j.Name
		armed := e.Exec(s, time.Now(), func() {
			line := fmt.Sprintf("%s\t%s", time.Now().In(e.Location()).
				Truncate(time.Second).Format(time.RFC3339), name)
			select {
			case lines <- line:
			case <-ctx.Done():
			}
		})
		if !armed {
			return fmt.Errorf("job %q: no future occurrence", j.Name)
		}
	}
	for {
		select {
		case line := <-lines:
			fmt.Fprintln(out, line)
		case <-ctx.Done():
			return nil
		}
	}
}
