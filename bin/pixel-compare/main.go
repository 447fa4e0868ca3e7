package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/compare"
	"pixel-compare/internal/config"
	diffimage "pixel-compare/internal/diff/image"
	"pixel-compare/internal/pixel"
	"pixel-compare/internal/report"
	"pixel-compare/internal/retry"
	"pixel-compare/internal/storage"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var ErrDuplicateOutput = xerrors.New("duplicate output image")

type Config struct {
	Output          string
	OutputDirectory string
	OutputFormat    string
	Directory       string
	BaseColor       string
	TestColor       string
	JPEGQuality     int
	AutoOrient      bool
	Report          string
	FailOnDiff      bool
	Concurrency     int
	Debug           bool
	RetryOn         string
	RetryMax        uint
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}

	var cfg Config
	pflag.StringVarP(&cfg.Output, "output", "o", config.EnvOrDefaultValue("OUTPUT", ""), "Path to write the diff image to (single test image only)")
	pflag.StringVarP(&cfg.OutputDirectory, "output-directory", "d", config.EnvOrDefaultValue("OUTPUT_DIRECTORY", ""), "Directory to write one diff image per test image to")
	pflag.StringVarP(&cfg.OutputFormat, "output-format", "f", config.EnvOrDefaultValue("OUTPUT_FORMAT", "png"), "Diff image format for --output-directory (png, jpeg or jpg)")
	pflag.StringVar(&cfg.Directory, "directory", config.EnvOrDefaultValue("DIRECTORY", "."), "Directory relative paths are resolved against")
	pflag.StringVar(&cfg.BaseColor, "base-color", config.EnvOrDefaultValue("BASE_COLOR", pixel.DefaultBaseColor.String()), "Highlight color for pixels only present in the baseline")
	pflag.StringVar(&cfg.TestColor, "test-color", config.EnvOrDefaultValue("TEST_COLOR", pixel.DefaultTestColor.String()), "Highlight color for pixels only present in the test image")
	pflag.IntVar(&cfg.JPEGQuality, "jpeg-quality", config.EnvOrDefaultValue("JPEG_QUALITY", 95), "JPEG quality of diff images")
	pflag.BoolVar(&cfg.AutoOrient, "auto-orient", config.EnvOrDefaultValue("AUTO_ORIENT", false), "Apply EXIF orientation when decoding")
	pflag.StringVar(&cfg.Report, "report", config.EnvOrDefaultValue("REPORT", "json"), "Report format (json or text)")
	pflag.BoolVar(&cfg.FailOnDiff, "fail-on-diff", config.EnvOrDefaultValue("FAIL_ON_DIFF", false), "Exit with status 1 when any test image differs")
	pflag.IntVarP(&cfg.Concurrency, "concurrency", "c", config.EnvOrDefaultValue("CONCURRENCY", runtime.GOMAXPROCS(0)), "Number of test images compared at once")
	pflag.BoolVar(&cfg.Debug, "debug", config.EnvOrDefaultValue("DEBUG", false), "Human readable debug logging")
	pflag.StringVar(&cfg.RetryOn, "http-retry-on", config.EnvOrDefaultValue("HTTP_RETRY_ON", ""), "Conditions to retry remote image fetches on (e.g. 5xx,connect-failure)")
	pflag.UintVar(&cfg.RetryMax, "http-retry-max", config.EnvOrDefaultValue("HTTP_RETRY_MAX", uint(3)), "Maximum number of retries for remote image fetches")
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, test not specified")
	}
	if cfg.Output != "" && len(args) > 2 {
		log.Fatalf("--output accepts a single test image, use --output-directory instead")
	}
	if cfg.Report != "json" && cfg.Report != "text" {
		log.Fatalf("Unknown report format: %s", cfg.Report)
	}

	logger, err := config.NewLogger(os.Stderr, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := run(ctx, cfg, logger, args[0], args[1:])
	if err != nil {
		log.Fatalf("Failed to compare images: %v", err)
	}

	if cfg.Report == "text" {
		err = r.WriteText(os.Stdout)
	} else {
		err = r.WriteJSON(os.Stdout)
	}
	if err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if cfg.FailOnDiff && !r.IsSame {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, baseline string, tests []string) (*report.Report, error) {
	baseColor, err := pixel.ParseColor(cfg.BaseColor)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse base color: %w", err)
	}
	testColor, err := pixel.ParseColor(cfg.TestColor)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse test color: %w", err)
	}

	var outputFormat codec.Format
	if cfg.OutputDirectory != "" {
		outputFormat, err = codec.ParseFormat(cfg.OutputFormat)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse output format: %w", err)
		}
	}

	outputs, err := outputLocations(cfg, tests, outputFormat)
	if err != nil {
		return nil, err
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	s, err := storage.NewRouter(ctx, storage.RouterConfig{
		File: storage.FileConfig{
			Directory: cfg.Directory,
		},
		S3: storage.S3Config{
			EndpointURL: config.EnvOrDefaultValue("S3_ENDPOINT_URL", ""),
		},
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create storage backend: %w", err)
	}

	c := codec.NewCodec(s,
		codec.WithJPEGQuality(cfg.JPEGQuality),
		codec.WithAutoOrientation(cfg.AutoOrient),
		codec.WithMaxPixels(config.EnvOrDefaultValue("MAX_PIXELS", int64(0))),
	)
	comparer := compare.NewComparer(c, diffimage.NewPixelDiff(0), logger)

	outcome, err := comparer.PixelCompare(ctx, compare.Options{
		BaseImage: compare.Path(baseline),
		BaseColor: &baseColor,
		TestColor: &testColor,
	})
	if err != nil {
		return nil, err
	}
	deferred, ok := outcome.(*compare.Deferred)
	if !ok {
		return nil, xerrors.Errorf("unexpected outcome %T", outcome)
	}
	logger.Debug("decoded baseline", "baseline", baseline, "width", deferred.Baseline().Width, "height", deferred.Baseline().Height)

	entries := make([]report.Entry, len(tests))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(cfg.Concurrency, 1))
	for i, test := range tests {
		eg.Go(func() error {
			outputImage := outputs[i]

			now := time.Now()
			o, err := deferred.Compare(egCtx, compare.Options{
				TestImage:   compare.Path(test),
				OutputImage: outputImage,
			})
			if err != nil {
				return xerrors.Errorf("failed to compare %s: %w", test, err)
			}
			resolved, ok := o.(*compare.Resolved)
			if !ok {
				return xerrors.Errorf("unexpected outcome %T", o)
			}
			logger.Info("compared", "test", test, "isSame", resolved.IsSame, "mismatched", resolved.Result.Mismatched, "elapsed", time.Since(now))

			entries[i] = report.NewEntry(test, outputImage, resolved.Result)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return report.New(entries), nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	if cfg.RetryOn == "" {
		return &http.Client{Timeout: 30 * time.Second}, nil
	}
	retryOn, err := retry.NewRetryOnFromString(cfg.RetryOn)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse retry conditions: %w", err)
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &retry.Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, cfg.RetryMax, nil),
			RetryOn:       retryOn,
		},
	}, nil
}

// diffLocation names the diff image of test inside directory as
// "<test>.diff.<format>". Local relative tests keep their directories so
// same-named tests in different directories do not collide; absolute paths
// and URLs use their base name.
func diffLocation(directory string, test string, format codec.Format) string {
	var name string
	if u, err := url.Parse(test); err == nil && u.Scheme != "" {
		name = path.Base(strings.TrimRight(u.Path, "/"))
	} else if filepath.IsLocal(test) {
		name = filepath.ToSlash(filepath.Clean(test))
	} else {
		name = filepath.Base(test)
	}
	return strings.TrimRight(directory, "/") + "/" + name + ".diff" + format.Extension()
}

// outputLocations maps every test to its diff image location and fails when
// two tests would write to the same one.
func outputLocations(cfg Config, tests []string, format codec.Format) ([]string, error) {
	locations := make([]string, len(tests))
	seen := make(map[string]string, len(tests))
	for i, test := range tests {
		location := cfg.Output
		if cfg.OutputDirectory != "" {
			location = diffLocation(cfg.OutputDirectory, test, format)
		}
		if location != "" {
			if other, ok := seen[location]; ok {
				return nil, xerrors.Errorf("%w: %s and %s both write %s", ErrDuplicateOutput, other, test, location)
			}
			seen[location] = test
		}
		locations[i] = location
	}
	return locations, nil
}
