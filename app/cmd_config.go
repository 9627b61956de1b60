package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewCmdConfig(out io.Writer, config *Config) *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doConfig(out, config, section)
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "Print a single section, e.g. store")
	return cmd
}

func doConfig(out io.Writer, config *Config, section string) error {
	if section == "" {
		fmt.Fprintf(out, "# ram-relationships configuration, loaded from %s\n", config.source())
		_, err := fmt.Fprintf(out, "%s", config)
		return err
	}

	settings := config.section(section)
	if len(settings) == 0 {
		return errors.Errorf("unknown configuration section %q", section)
	}
	fmt.Fprintf(out, "[%s]\n", section)
	for _, line := range settings {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// source names the file merged over the defaults, if any.
func (c Config) source() string {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return "defaults and environment"
	}
	return c.v.ConfigFileUsed()
}

// section returns the sorted "key = value" settings under name, with
// environment overrides applied.
func (c Config) section(name string) []string {
	if c.v == nil {
		return nil
	}
	prefix := strings.ToLower(name) + "."
	var lines []string
	for _, key := range c.v.AllKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %v", strings.TrimPrefix(key, prefix), c.v.Get(key)))
	}
	sort.Strings(lines)
	return lines
}
