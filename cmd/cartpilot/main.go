/*
cartpilot is a command line grocery cart automation tool written in Go.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cartpilot/cartpilot/internal/automation"
	"github.com/cartpilot/cartpilot/internal/bridge"
	"github.com/cartpilot/cartpilot/internal/config"
	"github.com/cartpilot/cartpilot/internal/log"
	"github.com/cartpilot/cartpilot/internal/output"
	"github.com/cartpilot/cartpilot/internal/page"
	"github.com/cartpilot/cartpilot/internal/plan"
	"github.com/cartpilot/cartpilot/internal/recorder"
	"github.com/cartpilot/cartpilot/internal/retailer"
	"github.com/cartpilot/cartpilot/internal/types"
	"github.com/cartpilot/cartpilot/internal/vision"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and store additional helpful debugging data."`

	Run     RunCmd     `cmd:"" help:"Work through a shopping list and add the items to the retailer's cart."`
	PlanRun PlanRunCmd `cmd:"" help:"Resolve the shopping list through the plan service and add the planned product URLs, falling back to search."`
	Record  RecordCmd  `cmd:"" help:"Record page interactions into a replayable automation script."`
	Replay  ReplayCmd  `cmd:"" help:"Replay a previously recorded automation script."`
	Scripts ScriptsCmd `cmd:"" help:"List or delete saved automation scripts."`
}

// session bundles the browser-facing pieces every command needs.
type session struct {
	config  *config.Config
	profile *retailer.Profile
	ctrl    *page.ChromeController
	bridge  *bridge.Bridge
}

func newSession(configPath string, retailerOverride string) (*session, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	r := cfg.Retailer
	if retailerOverride != "" {
		r = types.Retailer(retailerOverride)
	}
	profile, err := cfg.Profile(r)
	if err != nil {
		return nil, err
	}
	ctrl, err := page.NewChromeController(&cfg.Browser)
	if err != nil {
		return nil, err
	}
	return &session{
		config:  cfg,
		profile: profile,
		ctrl:    ctrl,
		bridge:  bridge.New(ctrl),
	}, nil
}

func (s *session) close() {
	s.ctrl.Close()
}

func (s *session) orchestrator(stopOnInterrupt bool) *automation.Orchestrator {
	callbacks := automation.Callbacks{
		OnProgress: func(step types.AutomationStep, item *types.ShoppingItem) {
			if item != nil {
				slog.Info(fmt.Sprintf("%s %s", step.Icon, step.Description), slog.String("item", item.Name))
			} else {
				slog.Info(fmt.Sprintf("%s %s", step.Icon, step.Description))
			}
		},
		OnItemCompleted: func(itemID string, success bool) {
			slog.Info("item completed", slog.String("item", itemID), slog.Bool("success", success))
		},
		OnPauseForAuth: func() {
			slog.Warn("not signed in, please sign in in the browser window")
		},
	}
	o := automation.New(s.ctrl, s.bridge, s.profile, s.verifier(), callbacks, automation.Options{
		SkipAuthCheck: s.config.SkipAuthCheck,
		DisableVision: s.config.DisableVision,
		MaxCandidates: s.config.MaxCandidates,
	})
	if stopOnInterrupt {
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-interrupts
			slog.Info("interrupt received, stopping after the current item")
			o.Stop()
		}()
	}
	return o
}

func (s *session) verifier() *vision.Verifier {
	if s.config.DisableVision {
		return nil
	}
	return vision.NewVerifier(s.config.OpenAIAPIKey, s.config.VisionModel)
}

func (s *session) writeSummary(summary *types.RunSummary) error {
	writer, err := output.New(&s.config.Writer)
	if err != nil {
		return err
	}
	return writer.Write(summary)
}

type RunCmd struct {
	Config   string `short:"c" default:"" help:"The location of the configuration file." completion:"<file>"`
	List     string `short:"l" required:"" help:"The shopping list yaml file." completion:"<file>"`
	Retailer string `short:"r" help:"Override the configured retailer (woolworths or coles)."`
	Stdout   bool   `short:"o" help:"Write the run summary to stdout despite any other writer configuration."`
}

func (rc *RunCmd) Run() error {
	items, err := config.LoadShoppingList(rc.List)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	s, err := newSession(rc.Config, rc.Retailer)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer s.close()
	if rc.Stdout {
		s.config.Writer.Type = output.STDOUT_WRITER_TYPE
	}

	summary, err := s.orchestrator(true).Run(context.Background(), items)
	if err != nil {
		slog.Error(fmt.Sprintf("run aborted: %v", err))
		return err
	}
	return s.writeSummary(summary)
}

type PlanRunCmd struct {
	Config   string `short:"c" default:"" help:"The location of the configuration file." completion:"<file>"`
	List     string `short:"l" required:"" help:"The shopping list yaml file." completion:"<file>"`
	Retailer string `short:"r" help:"Override the configured retailer (woolworths or coles)."`
	Stdout   bool   `short:"o" help:"Write the run summary to stdout despite any other writer configuration."`
}

func (pc *PlanRunCmd) Run() error {
	items, err := config.LoadShoppingList(pc.List)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	s, err := newSession(pc.Config, pc.Retailer)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer s.close()
	if pc.Stdout {
		s.config.Writer.Type = output.STDOUT_WRITER_TYPE
	}

	ctx := context.Background()
	o := s.orchestrator(true)

	resolved, err := plan.NewClient(s.config.PlanServiceURL).Resolve(ctx, s.profile.Name, items)
	if err != nil {
		// the plan service is best effort, the search pipeline handles
		// the list on its own
		slog.Warn(fmt.Sprintf("plan service unavailable, falling back to search: %v", err))
		summary, err := o.Run(ctx, items)
		if err != nil {
			slog.Error(fmt.Sprintf("run aborted: %v", err))
			return err
		}
		return s.writeSummary(summary)
	}

	summary, err := o.RunPlan(ctx, resolved)
	if err != nil {
		slog.Error(fmt.Sprintf("run aborted: %v", err))
		return err
	}
	return s.writeSummary(summary)
}

type RecordCmd struct {
	Config   string `short:"c" default:"" help:"The location of the configuration file." completion:"<file>"`
	Retailer string `short:"r" help:"Override the configured retailer (woolworths or coles)."`
	Name     string `short:"n" required:"" help:"The name to store the recording under."`
}

func (rc *RecordCmd) Run() error {
	s, err := newSession(rc.Config, rc.Retailer)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer s.close()

	ctx := context.Background()
	if err := s.ctrl.Navigate(ctx, s.profile.HomeURL); err != nil {
		slog.Error(fmt.Sprintf("failed to open %s: %v", s.profile.HomeURL, err))
		return err
	}
	r, err := recorder.Start(ctx, s.bridge, s.profile.Name, rc.Name)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	fmt.Println("recording, interact with the page and press enter to stop")
	fmt.Scanln()

	script, err := r.Stop()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if err := recorder.NewStore(s.config.ScriptDir).Save(script); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	slog.Info(fmt.Sprintf("saved %d actions for %s", len(script.Actions), script.Retailer))
	return nil
}

type ReplayCmd struct {
	Config     string `short:"c" default:"" help:"The location of the configuration file." completion:"<file>"`
	Retailer   string `short:"r" help:"Override the configured retailer (woolworths or coles)."`
	Substitute string `short:"s" help:"Value to type in place of recorded input values."`
}

func (rc *ReplayCmd) Run() error {
	s, err := newSession(rc.Config, rc.Retailer)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer s.close()

	script, err := recorder.NewStore(s.config.ScriptDir).Load(s.profile.Name)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	ctx := context.Background()
	if err := s.ctrl.Navigate(ctx, s.profile.HomeURL); err != nil {
		slog.Error(fmt.Sprintf("failed to open %s: %v", s.profile.HomeURL, err))
		return err
	}
	if err := recorder.NewPlayer(s.bridge).Replay(ctx, script, rc.Substitute); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	slog.Info(fmt.Sprintf("replayed %d actions", len(script.Actions)))
	return nil
}

type ScriptsCmd struct {
	Config string `short:"c" default:"" help:"The location of the configuration file." completion:"<file>"`
	Delete string `short:"D" help:"Delete the saved script for the given retailer instead of listing."`
}

func (sc *ScriptsCmd) Run() error {
	cfg, err := config.NewConfig(sc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	store := recorder.NewStore(cfg.ScriptDir)

	if sc.Delete != "" {
		if err := store.Delete(types.Retailer(sc.Delete)); err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			return err
		}
		slog.Info(fmt.Sprintf("deleted script for %s", sc.Delete))
		return nil
	}

	scripts, err := store.List()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	for _, script := range scripts {
		fmt.Printf("%s\t%s\t%d actions\t%s\n", script.Retailer, script.Name, len(script.Actions), script.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	// not very nice that the log package contains global state,
	// and that the following function relies on the log.Debug variable being set
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
