package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/tvgrid/internal/config"
	"github.com/jmylchreest/tvgrid/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing tvgrid configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all available configuration options. In a clean environment
the output is the built-in defaults; you can redirect it to a file to
create a configuration template:

  tvgrid config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/tvgrid, $HOME/.tvgrid)
  - Environment variables (TVGRID_SERVER_PORT, TVGRID_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the TVGRID_ prefix and underscores for nesting.
Example: server.port -> TVGRID_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get mapstructure tag or use the field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Defaults overlaid with any config file and environment variables
	// present, same as the server sees them.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# tvgrid Configuration File")
	fmt.Println("# ==========================")
	fmt.Println("#")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   TVGRID_SERVER_HOST, TVGRID_SERVER_PORT")
	fmt.Println("#   TVGRID_DATABASE_DRIVER, TVGRID_DATABASE_DSN")
	fmt.Println("#   TVGRID_SOURCES_REFRESH_CRON, TVGRID_STORAGE_BASE_DIR")
	fmt.Println("#   TVGRID_LOGGING_LEVEL, TVGRID_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
