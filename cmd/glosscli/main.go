// Command glosscli resolves text against a gloss dictionary and plays the
// result, or the scripted demo, through a console player.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"glosskit/core"
	"glosskit/demo"
	"glosskit/gloss"
	"glosskit/playback"
)

var cfgFile string

// options are resolved by viper from flags, GLOSSCLI_* variables and the
// optional glosscli.yaml, in that order of precedence.
type options struct {
	Dictionary     string
	MinFingerspell int
	Speed          float64
	Clip           time.Duration
	Letter         time.Duration
}

func loadOptions() options {
	return options{
		Dictionary:     viper.GetString("dictionary"),
		MinFingerspell: viper.GetInt("min-fingerspell"),
		Speed:          viper.GetFloat64("speed"),
		Clip:           viper.GetDuration("clip"),
		Letter:         viper.GetDuration("letter"),
	}
}

var rootCmd = &cobra.Command{
	Use:           "glosscli",
	Short:         "Inspect gloss resolution and playback without an extension",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		core.SetLogger(core.NewWriterLogger(os.Stderr, core.ParseLevel(viper.GetString("log-level"))))
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [text...]",
	Short: "Print the dispatch tokens for a transcript",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := loadResolver(loadOptions())
		if err != nil {
			return err
		}
		for _, r := range resolver.ResolveWords(strings.Join(args, " ")) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", r.Word, r.Token)
		}
		return nil
	},
}

var playCmd = &cobra.Command{
	Use:   "play [text...]",
	Short: "Resolve a transcript and play it through the console player",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadOptions()
		resolver, err := loadResolver(opts)
		if err != nil {
			return err
		}
		tokens := resolver.ResolveText(strings.Join(args, " "))
		if len(tokens) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to play")
			return nil
		}
		return runLoop(cmd.Context(), cmd.OutOrStdout(), opts, func(sched *playback.Scheduler, _ core.Clock, done func()) {
			sched.OnStateChange = func(st playback.State) {
				if st.Idle() && sched.QueueLen() == 0 {
					done()
				}
			}
			for _, tok := range tokens {
				sched.Enqueue(tok)
			}
		})
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the scripted demo through the console player",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		opts := loadOptions()
		return runLoop(cmd.Context(), out, opts, func(sched *playback.Scheduler, clock core.Clock, done func()) {
			runner := demo.NewRunner(demo.DefaultScript(), sched, clock, demo.DefaultConfig(), core.GetLogger())
			runner.SetSpeed(opts.Speed)
			runner.OnCaption = func(c demo.Caption) {
				fmt.Fprintf(out, "\n[%d] %s\n", c.Scene+1, c.Text)
			}
			runner.OnComplete = done
			sched.OnEntryDone = func(id playback.EntryID, _ gloss.DispatchToken) {
				runner.EntryDone(id)
			}
			runner.Start()
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./glosscli.yaml)")
	flags.String("dictionary", "", "word-to-gloss JSON file (default: built-in dictionary)")
	flags.Int("min-fingerspell", gloss.MinFingerspellLength, "shortest unknown word to fingerspell")
	flags.Float64("speed", core.DefaultSpeed, "playback speed factor")
	flags.Duration("clip", 800*time.Millisecond, "simulated gloss clip length")
	flags.Duration("letter", 250*time.Millisecond, "simulated letter length")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("glosscli")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("GLOSSCLI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "glosscli: config: %v\n", err)
			os.Exit(1)
		}
	}
}

func loadResolver(opts options) (*gloss.Resolver, error) {
	var dict *gloss.Dictionary
	if opts.Dictionary != "" {
		d, err := gloss.LoadDictionaryFile(opts.Dictionary)
		if err != nil {
			return nil, err
		}
		dict = d
	}
	return gloss.NewResolver(dict, opts.MinFingerspell), nil
}

// runLoop owns the scheduler goroutine: setup and every timer callback run
// here until done is called or ctx ends.
func runLoop(ctx context.Context, out io.Writer, opts options, setup func(*playback.Scheduler, core.Clock, func())) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := core.NewLoopClock(ctx, 16)
	player := newConsolePlayer(out, clock, opts.Clip, opts.Letter)
	sched := playback.NewScheduler(playback.DefaultConfig(), player, clock, core.GetLogger())
	sched.SetSpeed(opts.Speed)
	player.sched = sched

	finished := make(chan struct{})
	var once sync.Once
	setup(sched, clock, func() { once.Do(func() { close(finished) }) })

	for {
		select {
		case f := <-clock.Callbacks():
			f()
		case <-finished:
			return nil
		case <-ctx.Done():
			sched.Stop()
			return ctx.Err()
		}
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rootCmd.AddCommand(resolveCmd, playCmd, demoCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "glosscli: %v\n", err)
		os.Exit(1)
	}
}
