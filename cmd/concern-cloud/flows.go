package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xaenox/concern-cloud/internal/models"
	"github.com/xaenox/concern-cloud/internal/storage"
)

var flowFile string

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Inspect and maintain stored flowcharts",
	Long: `Direct store maintenance for flowchart documents.

Available subcommands:
  list       - List flows with node and edge counts
  inspect    - Show node positions, labels and edges of one flow
  move-nodes - Apply node positions from a YAML file
  set-edges  - Add, replace or remove edges from a YAML file`,
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flows",
	Args:  cobra.NoArgs,
	RunE:  runFlowsList,
}

var flowsInspectCmd = &cobra.Command{
	Use:   "inspect <flow-id>",
	Short: "Show the nodes and edges of a flow",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsInspect,
}

var flowsMoveCmd = &cobra.Command{
	Use:   "move-nodes <flow-id>",
	Short: "Update node positions",
	Long: `Reads a YAML map of node id to position and writes it into the flowchart:

  WFgunJwZz89Ngb89ixw4p: {x: 400, y: 20}
  mgLU4ZtExIeo0oXA3yVay: {x: 350, y: 175}`,
	Args: cobra.ExactArgs(1),
	RunE: runFlowsMove,
}

var flowsEdgesCmd = &cobra.Command{
	Use:   "set-edges <flow-id>",
	Short: "Add, replace or remove edges",
	Long: `Reads a YAML edge list. Edges whose id already exists are replaced, the
rest are appended, and ids under remove are deleted. Keys other than id,
source and target are stored as edge attributes.

  edges:
    - id: e1
      source: a
      target: b
      sourceHandle: output-bottom
      targetHandle: input-top
      style: {stroke: "#333", strokeWidth: 2}
      markerEnd: {type: arrowclosed}
  remove: [e7]`,
	Args: cobra.ExactArgs(1),
	RunE: runFlowsEdges,
}

func init() {
	for _, c := range []*cobra.Command{flowsMoveCmd, flowsEdgesCmd} {
		c.Flags().StringVarP(&flowFile, "file", "f", "", "YAML update file")
		_ = c.MarkFlagRequired("file")
	}
	flowsCmd.AddCommand(flowsListCmd, flowsInspectCmd, flowsMoveCmd, flowsEdgesCmd)
}

func openStore() (storage.Storage, error) {
	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return nil, err
	}
	return store, nil
}

func runFlowsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	flows, err := store.ListFlows(cmd.Context())
	if err != nil {
		return err
	}
	return printFlowList(cmd.OutOrStdout(), flows)
}

func printFlowList(w io.Writer, flows []models.Flow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNODES\tEDGES\tCREATED")
	for i := range flows {
		s := flows[i].Summary()
		created := "-"
		if !s.Timestamp.IsZero() {
			created = s.Timestamp.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Name, s.NodeCount, s.EdgeCount, created)
	}
	return tw.Flush()
}

func runFlowsInspect(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	flow, err := store.GetFlow(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printFlow(cmd.OutOrStdout(), flow)
}

func printFlow(w io.Writer, flow *models.Flow) error {
	g, err := flow.Graph()
	if err != nil {
		return errors.Wrapf(err, "flow %s", flow.ID)
	}
	fmt.Fprintf(w, "ID:          %s\nName:        %s\nDescription: %s\nVersion:     %d\n\n",
		flow.ID, flow.Name, flow.Description, flow.Version)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tLABEL\tX\tY")
	for _, n := range g.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\n", n.ID, n.Label(), n.Position.X, n.Position.Y)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "EDGE\tSOURCE\tTARGET\t")
	for _, e := range g.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", e.ID, e.Source, e.Target)
	}
	return tw.Flush()
}

// parsePositions reads a node id → position map.
func parsePositions(b []byte) (map[string]models.Position, error) {
	var positions map[string]models.Position
	if err := yaml.Unmarshal(b, &positions); err != nil {
		return nil, errors.Wrap(err, "parse positions")
	}
	if len(positions) == 0 {
		return nil, errors.New("no positions given")
	}
	return positions, nil
}

type edgeFile struct {
	Edges  []map[string]any `yaml:"edges"`
	Remove []string         `yaml:"remove"`
}

// parseEdges reads an edge update file into edges to upsert and ids to remove.
func parseEdges(b []byte) ([]models.Edge, []string, error) {
	var f edgeFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, errors.Wrap(err, "parse edges")
	}
	edges := make([]models.Edge, 0, len(f.Edges))
	for i, raw := range f.Edges {
		id, _ := raw["id"].(string)
		source, _ := raw["source"].(string)
		target, _ := raw["target"].(string)
		if id == "" || source == "" || target == "" {
			return nil, nil, errors.Errorf("edge %d: id, source and target are required", i)
		}
		attrs := make(map[string]any, len(raw))
		for k, v := range raw {
			switch k {
			case "id", "source", "target":
			default:
				attrs[k] = v
			}
		}
		e, err := models.NewEdge(id, source, target, attrs)
		if err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	if len(edges) == 0 && len(f.Remove) == 0 {
		return nil, nil, errors.New("no edges given")
	}
	return edges, f.Remove, nil
}

// updateGraph loads a flow, applies fn to its graph and stores the result.
func updateGraph(cmd *cobra.Command, id string, fn func(*models.Graph) string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	flow, err := store.GetFlow(ctx, id)
	if err != nil {
		return err
	}
	g, err := flow.Graph()
	if err != nil {
		return errors.Wrapf(err, "flow %s", id)
	}
	summary := fn(g)
	payload, err := g.Encode()
	if err != nil {
		return errors.Wrap(err, "encode flowchart")
	}
	if _, err := store.UpdateFlowchart(ctx, id, payload); err != nil {
		return err
	}
	logger.Info("Flowchart updated", zap.String("flow_id", id), zap.String("change", summary))
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

func runFlowsMove(cmd *cobra.Command, args []string) error {
	b, err := os.ReadFile(flowFile)
	if err != nil {
		return err
	}
	positions, err := parsePositions(b)
	if err != nil {
		return err
	}
	return updateGraph(cmd, args[0], func(g *models.Graph) string {
		moved := g.MoveNodes(positions)
		var unknown []string
		for id := range positions {
			if _, ok := g.Node(id); !ok {
				unknown = append(unknown, id)
			}
		}
		sort.Strings(unknown)
		if len(unknown) > 0 {
			logger.Warn("Positions for unknown nodes ignored", zap.Strings("node_ids", unknown))
		}
		return fmt.Sprintf("moved %d node(s)", moved)
	})
}

func runFlowsEdges(cmd *cobra.Command, args []string) error {
	b, err := os.ReadFile(flowFile)
	if err != nil {
		return err
	}
	edges, remove, err := parseEdges(b)
	if err != nil {
		return err
	}
	return updateGraph(cmd, args[0], func(g *models.Graph) string {
		removed := g.RemoveEdges(remove)
		updated, added := g.UpsertEdges(edges)
		return fmt.Sprintf("updated %d, added %d, removed %d edge(s)", updated, added, removed)
	})
}
