package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"swiftget/internal"
)

var (
	optConfigShow bool
	optConfigSet  string
	optConfigGet  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the persistent config file",
	Long: `config manages the flat JSON key/value file at
$XDG_CONFIG_HOME/swiftget/config.json (or ~/.config/swiftget/config.json).

Recognised keys: default-user-agent, default-connections, default-max-speed,
default-directory, check-certificate. Unknown keys are preserved but have no
runtime effect.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&optConfigShow, "show", false, "print all persisted config keys")
	configCmd.Flags().StringVar(&optConfigSet, "set", "", "set a key, as KEY=VALUE")
	configCmd.Flags().StringVar(&optConfigGet, "get", "", "print a single key's value")
}

func runConfig(cmd *cobra.Command, args []string) error {
	set := cmd.Flags().Changed("set")
	get := cmd.Flags().Changed("get")
	show := cmd.Flags().Changed("show")
	if countTrue(set, get, show) != 1 {
		return newExitError(2, fmt.Errorf("exactly one of --show, --set, or --get is required"))
	}

	path, err := internal.PersistentConfigPath()
	if err != nil {
		return newExitError(5, fmt.Errorf("resolve config path: %w", err))
	}
	m, err := internal.LoadPersistentConfig(path)
	if err != nil {
		return newExitError(5, fmt.Errorf("load config: %w", err))
	}

	switch {
	case show:
		printConfig(m)
		return nil
	case get:
		v, ok := m[optConfigGet]
		if !ok {
			return newExitError(2, internal.NewConfigKeyNotFoundError(optConfigGet))
		}
		fmt.Println(v)
		return nil
	default:
		key, value, err := parseSetArg(optConfigSet)
		if err != nil {
			return newExitError(2, err)
		}
		m[key] = value
		if err := internal.SavePersistentConfig(path, m); err != nil {
			return newExitError(5, fmt.Errorf("save config: %w", err))
		}
		fmt.Printf("%s = %s\n", key, value)
		return nil
	}
}

func parseSetArg(raw string) (string, string, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid --set value %q: expected KEY=VALUE", raw)
	}
	return parts[0], parts[1], nil
}

func printConfig(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, m[k])
	}
}

func countTrue(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
