package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-reports/internal/attachment"
	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/internal/config"
	"github.com/jwalitptl/clinic-reports/internal/middleware"
	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/document"
	"github.com/jwalitptl/clinic-reports/internal/report/merge"
	reportService "github.com/jwalitptl/clinic-reports/internal/service/report"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
	"github.com/jwalitptl/clinic-reports/pkg/messaging"
	"github.com/jwalitptl/clinic-reports/pkg/messaging/redis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Render clinic reports and inspect report events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type renderOptions struct {
	kind       string
	in         string
	out        string
	format     string
	storeRoot  string
	configFile string
	verbose    bool
}

func renderCmd() *cobra.Command {
	opts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a report request file to CSV or PDF",
		Example: "  reportctl render --kind patient --in req.json --out report.pdf\n" +
			"  reportctl render --kind lab --in - --out - --format csv --store-root ./data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := render(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if opts.out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes, %d pages, %d placeholders) suggested name %s\n",
					opts.out, len(out.Body), out.Pages, out.Placeholders, out.Filename)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "report type: patient, clinician or appointment")
	cmd.Flags().StringVar(&opts.in, "in", "", `request JSON file, or "-" for stdin`)
	cmd.Flags().StringVar(&opts.out, "out", "", `output file, or "-" for stdout`)
	cmd.Flags().StringVar(&opts.format, "format", "", "override exportFormat (csv or pdf)")
	cmd.Flags().StringVar(&opts.storeRoot, "store-root", "", "resolve attachments from a local store rooted here")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "resolve attachments with the storage section of this config file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	cmd.MarkFlagsMutuallyExclusive("store-root", "config")

	return cmd
}

func render(ctx context.Context, opts renderOptions, stdin io.Reader, stdout io.Writer) (*reportService.Output, error) {
	kind, err := model.ParseReportKind(opts.kind)
	if err != nil {
		return nil, err
	}

	payload, err := readPayload(opts.in, stdin)
	if err != nil {
		return nil, err
	}
	if opts.format != "" {
		payload.ExportFormat = opts.format
	}
	if err := middleware.RegisterValidation(middleware.DefaultValidationConfig()); err != nil {
		return nil, err
	}
	if err := binding.Validator.ValidateStruct(payload); err != nil {
		return nil, fmt.Errorf("invalid request: %s", middleware.ValidationMessage(err))
	}

	log := logger.Nop()
	if opts.verbose {
		log = logger.NewLogger(&logger.Config{Level: logger.DebugLevel, Output: os.Stderr, TimeFormat: time.Kitchen})
	}

	storage, err := storageConfig(opts)
	if err != nil {
		return nil, err
	}
	stores, err := blobstore.FromConfig(ctx, storage, "http://reportctl.local")
	if err != nil {
		return nil, err
	}

	svc := reportService.NewService(
		attachment.NewResolver(stores.BlobStore, attachment.Config{
			ProfileBucket: storage.ProfileBucket,
			LabBucket:     storage.LabBucket,
			Budget:        20 * time.Second,
		}, log, nil),
		document.NewComposer(log),
		merge.NewPDFMerger(log, nil),
		nil, log, nil,
		reportService.Options{Creator: "reportctl"},
	)

	out, err := svc.Generate(ctx, payload.ToRequest(kind))
	if err != nil {
		return nil, err
	}

	if opts.out == "-" {
		_, err = stdout.Write(out.Body)
		return out, err
	}
	if err := os.WriteFile(opts.out, out.Body, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", opts.out, err)
	}
	return out, nil
}

func readPayload(in string, stdin io.Reader) (*model.ReportPayload, error) {
	var (
		data []byte
		err  error
	)
	if in == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(in)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var payload model.ReportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &payload, nil
}

// storageConfig picks the configured store, a local store with a throwaway
// signing key, or an empty memory store where every attachment is missing.
func storageConfig(opts renderOptions) (config.StorageConfig, error) {
	if opts.configFile != "" {
		cfg, err := config.LoadConfig(opts.configFile)
		if err != nil {
			return config.StorageConfig{}, err
		}
		return cfg.Storage, nil
	}

	storage := config.StorageConfig{
		Driver:             "memory",
		ProfileBucket:      "profile-images",
		LabBucket:          "lab-files",
		URLExpiry:          5 * time.Minute,
		FetchTimeout:       10 * time.Second,
		MaxAttachmentBytes: 20 << 20,
	}
	if opts.storeRoot != "" {
		secret := make([]byte, 32)
		if _, err := crypto_rand.Read(secret); err != nil {
			return config.StorageConfig{}, err
		}
		storage.Driver = "local"
		storage.Local = config.LocalConfig{Root: opts.storeRoot, Secret: hex.EncodeToString(secret)}
	}
	return storage, nil
}

func eventsCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print report-generated events from Redis as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.Log.Level), Output: os.Stderr})
			broker, err := redis.NewRedisBroker(ctx, redis.Config{URL: cfg.Redis.URL}, log)
			if err != nil {
				return err
			}
			defer broker.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return messaging.Consume(ctx, broker, cfg.Redis.Channel, log, func(msg messaging.Message) error {
				return enc.Encode(msg)
			})
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to config file")
	return cmd
}
