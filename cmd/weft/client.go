package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/rpc"
	"github.com/weftlabs/weft/internal/types"
)

// dialDaemon connects to the configured socket and pins the configured space.
func dialDaemon() (*rpc.Client, error) {
	c, err := rpc.Dial(config.GetString(config.KeySocketPath))
	if err != nil {
		return nil, err
	}
	c.SetSpace(config.GetString(config.KeySpaceID))
	return c, nil
}

// parseEndpoint reads a CLI endpoint argument. "type:id" is an entity;
// a bare id is a principal.
func parseEndpoint(arg string) types.Endpoint {
	if entityType, id, ok := strings.Cut(arg, ":"); ok {
		return types.EntityEndpoint(entityType, id)
	}
	return types.PrincipalEndpoint(arg)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// warnNegativeCost notes a budget-exhausted answer on stderr.
func warnNegativeCost(cost int) {
	if cost < 0 {
		fmt.Fprintf(os.Stderr, "weft: cost budget exhausted after %d steps; answer is incomplete\n", -cost)
	}
}
