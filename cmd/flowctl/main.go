// Command flowctl is a small operator CLI around the bundled demo
// graphs: it can print a graph's declared structure or run it end to
// end, with run options bound from flags, environment variables, and an
// optional .env file — the same cobra/viper/godotenv stack
// 88lin-divinesense uses for its own CLI surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowkit/flowkit/flow"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("flowctl: skipping .env load: %v", err)
	}

	viper.SetEnvPrefix("FLOWKIT")
	viper.AutomaticEnv()
	viper.SetDefault("timeout", "1m")
	viper.SetDefault("max_node_visits", 100)

	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Run and inspect flowkit demo graphs",
	}

	var graphName string
	root.PersistentFlags().StringVar(&graphName, "graph", "diamond", "demo graph to operate on (diamond|dynamic-routing)")
	_ = viper.BindPFlag("graph", root.PersistentFlags().Lookup("graph"))

	root.AddCommand(newStructureCommand(&graphName))
	root.AddCommand(newRunCommand(&graphName))

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newStructureCommand(graphName *string) *cobra.Command {
	return &cobra.Command{
		Use:   "structure",
		Short: "Print the declared node structure of a demo graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			runnable, _, err := buildDemoGraph(*graphName)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runnable.GetStructure())
		},
	}
}

func newRunCommand(graphName *string) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo graph to completion and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			runnable, defaultInput, err := buildDemoGraph(*graphName)
			if err != nil {
				return err
			}
			if input == "" {
				input = defaultInput
			}

			timeout := viper.GetDuration("timeout")
			maxVisits := viper.GetInt64("max_node_visits")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
			defer cancel()

			result, err := runnable.Run(ctx, input, flow.WithTimeout(timeout), flow.WithMaxNodeVisits(maxVisits))
			if err != nil {
				return err
			}
			if !result.IsOK {
				return result.Error
			}
			fmt.Printf("output: %v\n", result.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input value for the graph's start node")
	cmd.Flags().Duration("timeout", time.Minute, "wall-clock budget for the run")
	cmd.Flags().Int64("max-node-visits", 100, "total node-visit budget for the run")
	_ = viper.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("max_node_visits", cmd.Flags().Lookup("max-node-visits"))
	return cmd
}

// buildDemoGraph compiles one of the bundled demo graphs by name,
// returning a sensible default input alongside it.
func buildDemoGraph(name string) (*flow.Runnable, string, error) {
	switch name {
	case "diamond":
		return buildDiamondGraph()
	case "dynamic-routing":
		return buildDynamicRoutingGraph()
	default:
		return nil, "", fmt.Errorf("unknown demo graph %q", name)
	}
}

func buildDiamondGraph() (*flow.Runnable, string, error) {
	g := flow.NewGraph()
	if err := g.AddNode("start", func(_ context.Context, input any) (any, error) {
		return input, nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.AddNode("fetch_weather", func(_ context.Context, input any) (any, error) {
		return fmt.Sprintf("sunny in %v", input), nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.AddNode("fetch_events", func(_ context.Context, input any) (any, error) {
		return fmt.Sprintf("concert in %v tonight", input), nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.AddMergeNode("summarize", []string{"fetch_weather", "fetch_events"}, func(_ context.Context, inputs map[string]any) (any, error) {
		return fmt.Sprintf("%s; %s", inputs["fetch_weather"], inputs["fetch_events"]), nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.Edge("start", "fetch_weather", "fetch_events"); err != nil {
		return nil, "", err
	}
	r, err := g.Compile("start", "summarize")
	return r, "Seattle", err
}

func buildDynamicRoutingGraph() (*flow.Runnable, string, error) {
	g := flow.NewGraph()
	if err := g.AddNode("classify", func(_ context.Context, input any) (any, error) {
		msg, _ := input.(string)
		if len(msg) > 0 && msg[0] == '!' {
			return "spam", nil
		}
		return "ham", nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.AddNode("spam", func(_ context.Context, input any) (any, error) {
		return "quarantined", nil
	}, nil); err != nil {
		return nil, "", err
	}
	if err := g.AddNode("inbox", func(_ context.Context, input any) (any, error) {
		return "delivered", nil
	}, nil); err != nil {
		return nil, "", err
	}
	router, err := flow.CELRouter(`output == "spam" ? "spam" : "inbox"`)
	if err != nil {
		return nil, "", err
	}
	if err := g.DynamicEdge("classify", router, "spam", "inbox"); err != nil {
		return nil, "", err
	}
	r, err := g.Compile("classify", "")
	return r, "hello friend", err
}
