package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/client"
	"github.com/xaenox/concern-cloud/internal/layout"
	"github.com/xaenox/concern-cloud/internal/models"
	"github.com/xaenox/concern-cloud/internal/presenter"
)

var (
	cloudSession      string
	cloudFlow         string
	cloudInteractive  bool
	cloudOut          string
	cloudShowConcerns bool
	cloudAPI          string
	cloudWidth        float64
	cloudHeight       float64
)

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Theme a session's concerns and draw the bubble cloud",
	Long: `Runs the page pipeline against a running API: load flows, pick the flow
(--flow, or the most recently created one), load the session's concerns,
theme them and lay the themes out as bubbles.

Example:
  concern-cloud cloud --session abc123 --out cloud.svg`,
	Args: cobra.NoArgs,
	RunE: runCloud,
}

func init() {
	f := cloudCmd.Flags()
	f.StringVar(&cloudSession, "session", "", "session id whose concerns are themed")
	f.StringVar(&cloudFlow, "flow", "", "flow id (defaults to the most recent flow)")
	f.BoolVar(&cloudInteractive, "interactive", false, "interactive mode: list flows unless --flow is given, and show concerns")
	f.StringVarP(&cloudOut, "out", "o", "", "write the cloud as SVG to this file")
	f.BoolVar(&cloudShowConcerns, "show-concerns", false, "print the concern table")
	f.StringVar(&cloudAPI, "api", "", "API base URL (defaults to client.base_url)")
	f.Float64Var(&cloudWidth, "width", 1200, "cloud width in pixels")
	f.Float64Var(&cloudHeight, "height", 800, "cloud height in pixels")
}

func runCloud(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	baseURL := cloudAPI
	if baseURL == "" {
		baseURL = cfg.Client.BaseURL
	}
	backend := client.New(client.Options{
		BaseURL:        baseURL,
		Timeout:        cfg.Client.Timeout,
		ThemingTimeout: cfg.Client.ThemingTimeout,
		Logger:         logger,
	})

	measurer, err := layout.NewFontMeasurer()
	if err != nil {
		return err
	}
	defer measurer.Close()

	cloud := layout.NewCloud(layout.CloudOptions{
		Env: layout.Env{
			ContainerWidth:  cloudWidth,
			ContainerHeight: cloudHeight,
			WindowWidth:     cloudWidth,
			WindowHeight:    cloudHeight,
		},
		Measurer:    measurer,
		Synchronous: true,
		Logger:      logger,
	})

	mode := presenter.Automatic
	if cloudInteractive {
		mode = presenter.Interactive
	}
	page := presenter.NewPage(backend, cloud, presenter.Config{
		Mode:      mode,
		SessionID: cloudSession,
		FlowID:    cloudFlow,
		Logger:    logger,
	})
	defer page.Close()

	page.Subscribe(func(m presenter.Model) {
		if stage := m.State.Stage(); stage != "" {
			fmt.Fprintln(errOut, stage)
		}
	})

	runErr := page.Enter(ctx)
	if runErr == nil && mode == presenter.Interactive {
		m := page.Snapshot()
		if m.Flow == nil {
			return printFlowList(out, m.Flows)
		}
		runErr = page.SelectFlow(ctx, m.Flow.ID)
	}

	m := page.Snapshot()
	switch m.State {
	case presenter.Error:
		if m.ShowPicker && len(m.Flows) > 0 {
			fmt.Fprintln(errOut, m.Message)
			_ = printFlowList(errOut, m.Flows)
			return errors.New("no flow selected")
		}
		if runErr != nil {
			logger.Debug("pipeline failed", zap.Error(runErr))
		}
		return errors.New(m.Message)
	case presenter.Empty:
		fmt.Fprintln(out, m.Message)
		return nil
	case presenter.Themed:
	default:
		if runErr != nil {
			return runErr
		}
		return nil
	}

	fmt.Fprintf(out, "Flow: %s (%s)\n\n", m.Flow.Name, m.Flow.ID)
	if err := printThemes(out, m.Themes); err != nil {
		return err
	}
	if cloudShowConcerns || mode == presenter.Interactive {
		fmt.Fprintln(out)
		if err := printConcerns(out, m.Concerns); err != nil {
			return err
		}
	}

	if cloudOut != "" {
		f, err := os.Create(cloudOut)
		if err != nil {
			return err
		}
		if err := layout.WriteSVG(f, cloud.Layout()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("Cloud written", zap.String("path", cloudOut))
	}
	return nil
}

func printThemes(w io.Writer, set *models.ThemeSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "THEME\tCONCERNS\tAFFECTED NODES")
	for _, t := range set.Themes {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Name, len(t.Concerns), models.AffectedNodesText(t.NodeLabels()))
	}
	return tw.Flush()
}

func printConcerns(w io.Writer, concerns []models.Concern) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNODES\tCONCERN")
	for _, c := range concerns {
		kind := c.CommentType
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, kind, models.AffectedNodesText(c.NodeLabels), strings.ReplaceAll(c.Text, "\n", " "))
	}
	return tw.Flush()
}
