package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"roboctl/internal/artifact"
	"roboctl/internal/config"
	"roboctl/internal/descriptor"
	"roboctl/internal/variant"
	"roboctl/pkg/logging"
)

// Plan is everything derived before the first service is launched.
type Plan struct {
	Selection   variant.Selection
	Bundle      variant.Bundle
	Options     descriptor.Options
	Descriptors *descriptor.Set
	Artifacts   *artifact.Set
}

// Resolve collects the operator's choices.
func (a *Application) Resolve(ctx context.Context) (variant.Selection, error) {
	sel, err := a.resolver.Resolve(ctx, a.config.rawChoices())
	if err != nil {
		return variant.Selection{}, err
	}
	logging.Info("Resolver", "Selected %s", sel)
	return sel, nil
}

// descriptorOptions maps the configuration onto materialization options.
func descriptorOptions(rc config.RoboctlConfig) (descriptor.Options, error) {
	profile, err := descriptor.ParseProfile(rc.Profile)
	if err != nil {
		return descriptor.Options{}, err
	}
	opts := descriptor.DefaultOptions()
	opts.Profile = profile
	opts.Rviz = rc.RvizEnabled()
	if rc.Delays.MotionPlanning > 0 {
		opts.MotionPlanningDelay = rc.Delays.MotionPlanning
	}
	if rc.Delays.ExecutionInterfaces > 0 {
		opts.ExecutionDelay = rc.Delays.ExecutionInterfaces
	}
	return opts, nil
}

func (a *Application) locator() artifact.ShareLocator {
	return artifact.ShareLocator{Root: a.rc.ShareRoot, Packages: a.rc.Packages}
}

// renderer uses the external xacro processor for real launches only.
func (a *Application) renderer() artifact.DescriptionRenderer {
	if a.rc.Launcher == config.LauncherROS2 {
		return artifact.XacroRenderer{}
	}
	return artifact.ArgRenderer{}
}

// BuildPlan derives the bundle, the descriptor set and the artifacts for a
// selection. Any error here is fatal and no service has been started.
func (a *Application) BuildPlan(ctx context.Context, sel variant.Selection) (*Plan, error) {
	bundle := variant.NewBundle(sel, variant.BundleOptions{
		Robot:      a.rc.Robot,
		UseSimTime: a.rc.SimTime(),
	})

	opts, err := descriptorOptions(a.rc)
	if err != nil {
		return nil, err
	}
	set, err := descriptor.Materialize(bundle, opts)
	if err != nil {
		return nil, fmt.Errorf("materializing services: %w", err)
	}

	builder := artifact.NewBuilder(a.locator(), a.renderer())
	arts, err := builder.Build(ctx, bundle, set.RequiredArtifacts())
	if err != nil {
		return nil, err
	}

	return &Plan{
		Selection:   sel,
		Bundle:      bundle,
		Options:     opts,
		Descriptors: set,
		Artifacts:   arts,
	}, nil
}

// Prepare resolves the choices and builds the plan.
func (a *Application) Prepare(ctx context.Context) (*Plan, error) {
	sel, err := a.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.BuildPlan(ctx, sel)
}

var (
	planTitleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	planServiceStyle = lipgloss.NewStyle().Bold(true)
	planEdgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// FormatPlan renders the dependency graph and the required artifacts.
func FormatPlan(p *Plan, styled bool) string {
	render := func(st lipgloss.Style, s string) string {
		if styled {
			return st.Render(s)
		}
		return s
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", render(planTitleStyle, "Selection"))
	fmt.Fprintf(&b, "  %s (profile %s, robot %s)\n\n", p.Selection, p.Options.Profile, p.Bundle.Robot())

	fmt.Fprintf(&b, "%s\n", render(planTitleStyle, "Services"))
	for _, d := range p.Descriptors.Descriptors() {
		trigger := "immediate"
		if edges := d.GatingEdges(); len(edges) > 0 {
			parts := make([]string, len(edges))
			for i, e := range edges {
				parts[i] = e.String()
			}
			trigger = strings.Join(parts, " AND ")
		}
		fmt.Fprintf(&b, "  %-32s %s\n", render(planServiceStyle, d.Name), render(planEdgeStyle, trigger))
		fmt.Fprintf(&b, "    %s\n", d.Contract.CommandLine())
	}

	fmt.Fprintf(&b, "\n%s\n", render(planTitleStyle, "Artifacts"))
	for _, name := range p.Artifacts.Names() {
		a, _ := p.Artifacts.Get(name)
		source := a.Source()
		if source == "" {
			source = "(generated)"
		}
		fmt.Fprintf(&b, "  %-30s %s\n", name, source)
	}
	return b.String()
}
