// Command mustache renders and lints Mustache templates from the
// command line.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/runZeroInc/mustachevm"
)

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:           "mustache",
		Short:         "Render and lint Mustache templates",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newRenderCmd(), newLintCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	h := tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})
	slog.SetDefault(slog.New(h))
}

type renderOptions struct {
	dataFile    string
	partialsDir string
	escapeMode  string
	strict      bool
	outputFile  string
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a Mustache template against a YAML or JSON data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRender(args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.dataFile, "data", "d", "", "YAML or JSON data file (default: stdin)")
	flags.StringVar(&opts.partialsDir, "partials-dir", "", "directory to resolve {{>partial}} tags from")
	flags.StringVar(&opts.escapeMode, "escape", "html", "escape mode: html, json, none")
	flags.BoolVar(&opts.strict, "strict", false, "fail on any unresolved name or partial")
	flags.StringVarP(&opts.outputFile, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func runRender(templatePath string, opts renderOptions) error {
	mode, err := parseEscapeMode(opts.escapeMode)
	if err != nil {
		return err
	}

	c := mustache.New().WithEscapeMode(mode).WithErrors(opts.strict)
	if opts.partialsDir != "" {
		c = c.WithPartials(&mustache.FileProvider{Paths: []string{opts.partialsDir}})
	}

	tmpl, err := c.CompileFile(templatePath)
	if err != nil {
		return fmt.Errorf("compile %s: %w", templatePath, err)
	}

	data, err := loadData(opts.dataFile)
	if err != nil {
		return err
	}

	slog.Debug("rendering template", "template", templatePath, "strict", opts.strict)

	out := io.Writer(os.Stdout)
	if opts.outputFile != "" && opts.outputFile != "-" {
		f, err := os.Create(opts.outputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return tmpl.Frender(out, data)
}

func parseEscapeMode(s string) (mustache.EscapeMode, error) {
	switch strings.ToLower(s) {
	case "html", "":
		return mustache.EscapeHTML, nil
	case "json":
		return mustache.EscapeJSON, nil
	case "none", "raw":
		return mustache.Raw, nil
	default:
		return 0, fmt.Errorf("unknown escape mode %q", s)
	}
}

// loadData reads a YAML or JSON data document from path (stdin if
// path is empty or "-"), selecting the decoder by file extension and
// falling back to YAML (a superset of JSON) when the source is stdin.
func loadData(path string) (any, error) {
	var r io.Reader
	ext := ""
	if path == "" || path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
		ext = strings.ToLower(filepath.Ext(path))
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var data any
	if ext == ".json" {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse JSON data: %w", err)
		}
		return data, nil
	}

	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse YAML data: %w", err)
	}
	return normalizeYAML(data), nil
}

// normalizeYAML recursively converts the map[interface{}]interface{}
// values yaml.v2 produces into map[string]interface{}, so the default
// reflection-based DataProvider's string-keyed map lookup applies.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[fmt.Sprint(k)] = normalizeYAML(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = normalizeYAML(vv)
		}
		return out
	default:
		return v
	}
}

func newLintCmd() *cobra.Command {
	var partialsDir string

	cmd := &cobra.Command{
		Use:   "lint <template>...",
		Short: "Parse templates and report any diagnostics without rendering",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runLint(args, partialsDir)
		},
	}
	cmd.Flags().StringVar(&partialsDir, "partials-dir", "", "directory to resolve {{>partial}} tags from")
	return cmd
}

func runLint(paths []string, partialsDir string) error {
	c := mustache.New()
	if partialsDir != "" {
		c = c.WithPartials(&mustache.FileProvider{Paths: []string{partialsDir}})
	}

	var failed bool
	for _, p := range paths {
		_, err := c.CompileFile(p)
		if err == nil {
			continue
		}
		failed = true
		var perr *mustache.ParseError
		if errors.As(err, &perr) {
			for _, d := range perr.Diagnostics {
				fmt.Fprintf(os.Stderr, "%s:%s\n", p, d.Error())
			}
			continue
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
	}

	if failed {
		return fmt.Errorf("lint found errors")
	}
	slog.Info("lint clean", "files", len(paths))
	return nil
}
