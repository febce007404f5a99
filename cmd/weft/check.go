package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/rpc"
	"github.com/weftlabs/weft/internal/types"
)

var (
	checkStrategy  string
	checkCostLimit int
)

var checkCmd = &cobra.Command{
	Use:   "check <left> <relation> <right>",
	Short: "Check whether left is related to right",
	Long: `Asks the daemon whether a relationship holds. Endpoints are either
"type:id" entities or bare principal ids.

  weft check jane editor document:readme
  weft check jane viewer document:readme --strategy graph`,
	Args: cobra.ExactArgs(3),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkStrategy, "strategy", "", "evaluation strategy: direct, graph, or set (default graph)")
	checkCmd.Flags().IntVar(&checkCostLimit, "cost-limit", 0, "cost budget for this check (0 uses the daemon default)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	var res types.CheckResult
	err = client.Call(rpc.OpRelationCheck, &rpc.RelationCheckArgs{
		Left:      parseEndpoint(args[0]),
		Relation:  args[1],
		Right:     parseEndpoint(args[2]),
		Strategy:  checkStrategy,
		CostLimit: checkCostLimit,
	}, &res)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(res)
	}
	warnNegativeCost(res.Cost)
	if res.Found {
		fmt.Printf("allowed (cost %d)\n", res.Cost)
		for i, t := range res.Path {
			fmt.Printf("  %d. %s -%s-> %s\n", i+1, t.Left.String(), t.Relation, t.Right.String())
		}
		if res.Tuple != nil && len(res.Path) == 0 {
			fmt.Printf("  via %s -%s-> %s\n", res.Tuple.Left.String(), res.Tuple.Relation, res.Tuple.Right.String())
		}
	} else {
		fmt.Printf("denied (cost %d)\n", res.Cost)
	}
	return nil
}
