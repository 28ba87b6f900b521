// Command normalize runs the recipe normalization pipeline over a JSON batch file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"recipe-pipeline/internal/app"
	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/core/sink"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type options struct {
	Input    string `short:"i" long:"input" default:"-" description:"Batch JSON file, - for stdin"`
	Output   string `short:"o" long:"output" default:"-" description:"Output JSON file, - for stdout"`
	Rows     bool   `long:"rows" description:"Write the five sink tables instead of normalized recipes"`
	XLSX     string `long:"xlsx" description:"Also write the sink tables as an XLSX workbook"`
	Tables   string `long:"tables" env:"PIPELINE_TABLES_PATH" description:"Reference tables YAML overriding the embedded tables"`
	Workers  int    `long:"workers" description:"Recipes processed concurrently (0 keeps the configured value)"`
	NoRefine bool   `long:"no-refine" description:"Disable semantic refinement even when configured"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"warn" description:"Log level"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := common.InitLogger(opts.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdin, os.Stdout); err != nil {
		common.LogError("正規化失敗", zap.Error(err))
		fmt.Fprintf(os.Stderr, "normalize: %v\n", err)
		os.Exit(1)
	}
}

// run 讀取批次、執行流程並寫出結果
func run(ctx context.Context, cfg *config.Config, opts options, stdin io.Reader, stdout io.Writer) error {
	applyOptions(cfg, opts)

	data, err := readInput(opts.Input, stdin)
	if err != nil {
		return err
	}
	batch, err := recipe.DecodeBatch(data)
	if err != nil {
		return err
	}

	pipeline, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			common.LogWarn("關閉外部服務失敗", zap.Error(err))
		}
	}()

	result, err := pipeline.Processor.Run(ctx, batch)
	if err != nil {
		return err
	}

	var rows *sink.Rows
	if opts.Rows || opts.XLSX != "" {
		if rows, err = sink.BuildRows(result, nil); err != nil {
			return err
		}
	}

	var payload any = result
	if opts.Rows {
		payload = rows
	}
	if err := writeJSON(opts.Output, stdout, payload); err != nil {
		return err
	}

	if opts.XLSX != "" {
		f, err := os.Create(opts.XLSX)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.XLSX, err)
		}
		if err := sink.WriteXLSX(f, rows); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", opts.XLSX, err)
		}
		common.LogInfo("活頁簿已寫出", zap.String("path", opts.XLSX))
	}
	return nil
}

func applyOptions(cfg *config.Config, opts options) {
	if opts.Tables != "" {
		cfg.Pipeline.TablesPath = opts.Tables
	}
	if opts.Workers > 0 {
		cfg.Pipeline.Workers = opts.Workers
	}
	if opts.NoRefine {
		cfg.Refinement.Enabled = false
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeJSON(path string, stdout io.Writer, v any) error {
	w := stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
