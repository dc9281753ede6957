package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/chaofanll/TransformerEngine/internal/gemm"
)

var (
	casesPath     = flag.String("cases", "", "Path to a CBOR benchmark case file (built-in cases if empty)")
	writeCases    = flag.String("write-cases", "", "Write the built-in case set as CBOR to this path and exit")
	backendName   = flag.String("backend", "fused", "Multiply backend (fused, legacy)")
	iters         = flag.Int("iters", 10, "Iterations per case")
	maxConcurrent = flag.Int("max-concurrent", 4, "Maximum number of cases running concurrently")
	listenAddr    = flag.String("listen", "", "Address to serve /metrics on while benchmarking (e.g. :8080)")
	dumpPath      = flag.String("dump", "", "Write the last case's result matrix as an Arrow IPC stream to this path")
	duration      = flag.Duration("duration", 0, "Run soak mode for the specified duration (e.g. 10s, 20m)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	debugLog      = flag.Bool("debug", false, "Enable debug-level logging")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *debugLog {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *writeCases != "" {
		if err := saveCases(*writeCases, defaultCases()); err != nil {
			log.Fatal().Err(err).Str("path", *writeCases).Msg("Failed to write case file")
		}
		log.Info().Str("path", *writeCases).Int("count", len(defaultCases())).Msg("Wrote benchmark cases")
		return
	}

	cases := defaultCases()
	if *casesPath != "" {
		var err error
		cases, err = loadCases(*casesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *casesPath).Msg("Failed to load case file")
		}
		log.Info().Str("path", *casesPath).Int("count", len(cases)).Msg("Loaded benchmark cases")
	}

	if *listenAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", *listenAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(*listenAddr, nil); err != nil {
				log.Fatal().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	var backend gemm.Backend
	switch *backendName {
	case "fused":
		backend = gemm.NewFusedBackend()
	case "legacy":
		backend = gemm.NewLegacyBackend()
	default:
		log.Fatal().Str("backend", *backendName).Msg("Unknown backend")
	}
	eng := gemm.New(gemm.WithBackend(backend))

	if *duration > 0 {
		log.Info().Str("duration", duration.String()).Msg("Starting soak run")
		startTime := time.Now()
		endTime := startTime.Add(*duration)
		var rounds, calls int
		for time.Now().Before(endTime) {
			results, err := runCases(context.Background(), eng, cases, *iters, *maxConcurrent)
			if err != nil {
				log.Fatal().Err(err).Msg("Soak round failed")
			}
			rounds++
			calls += len(results) * *iters
			if rounds%10 == 0 {
				elapsed := time.Since(startTime)
				log.Info().
					Str("elapsed", elapsed.Round(time.Second).String()).
					Int("rounds", rounds).
					Int("calls", calls).
					Float64("calls_per_sec", float64(calls)/elapsed.Seconds()).
					Msg("Soak progress")
			}
		}
		log.Info().
			Int("rounds", rounds).
			Int("calls", calls).
			Dur("total_time", time.Since(startTime)).
			Msg("Soak run complete")
		return
	}

	results, err := runCases(context.Background(), eng, cases, *iters, *maxConcurrent)
	if err != nil {
		log.Fatal().Err(err).Msg("Benchmark failed")
	}

	for _, r := range results {
		log.Info().
			Str("case", r.Case.Name).
			Str("backend", backend.Name()).
			Int("m", r.Case.M).Int("n", r.Case.N).Int("k", r.Case.K).
			Dur("elapsed", r.Elapsed).
			Float64("gflops", r.GFlops).
			Int("nan", r.Stats.NaN).
			Int("inf", r.Stats.Inf).
			Float32("amax", r.Stats.AbsMax).
			Msg("Case complete")
	}

	if *dumpPath != "" && len(results) > 0 {
		last := results[len(results)-1]
		f, err := os.Create(*dumpPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *dumpPath).Msg("Failed to create dump file")
		}
		defer f.Close()
		if err := writeResultStream(f, last.Case.Name, last.Output, last.Case.M, last.Case.N); err != nil {
			log.Fatal().Err(err).Msg("Failed to write arrow stream")
		}
		log.Info().Str("path", *dumpPath).Str("case", last.Case.Name).Msg("Dumped result matrix")
	}
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("gemmbench"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
