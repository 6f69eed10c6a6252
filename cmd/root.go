package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/exporter"
	"github.com/devopsext/greeter/greeter"
	"github.com/devopsext/greeter/provider"
	"github.com/devopsext/greeter/telemetry"
	"github.com/spf13/cobra"
)

var VERSION = "unknown"

var logs = common.NewLogs()
var metrics = common.NewMetrics()
var stdout *provider.Stdout
var mainWG sync.WaitGroup

type RootOptions struct {
	Logs    []string
	Metrics []string
}

var rootOptions = RootOptions{

	Logs:    []string{"stdout"},
	Metrics: []string{},
}

var stdoutOptions = provider.StdoutOptions{

	Format:          "text",
	Level:           "info",
	Template:        "{{.file}} {{.msg}}",
	TimestampFormat: time.RFC3339Nano,
	TextColors:      true,
}

var greeterOptions = greeter.ServerOptions{

	Listen: greeter.DefaultListen,
}

var exporterOptions = exporter.ExporterOptions{

	Interval: exporter.DefaultInterval,
	Path:     exporter.DefaultPath,
	Echo:     true,
}

var exporterHTTPOptions = exporter.HTTPOptions{

	URL:    "/metrics",
	Listen: "",
}

var registryOptions = provider.RegistryOptions{}

var victoriaOptions = provider.VictoriaOptions{

	URL:    "/metrics",
	Listen: "",
	Prefix: "",
}

var prometheusOptions = provider.PrometheusOptions{

	URL:    "/metrics",
	Listen: "127.0.0.1:8080",
	Prefix: "",
}

var datadogOptions = provider.DataDogOptions{

	ServiceName: "greeter",
	Environment: "none",
	Tags:        "",
}

var datadogMeterOptions = provider.DataDogMeterOptions{

	AgentHost: "",
	AgentPort: 8125,
	Prefix:    "",
}

var opentelemetryOptions = provider.OpentelemetryOptions{

	ServiceName: "greeter",
	Environment: "none",
	Attributes:  "",
}

var opentelemetryMeterOptions = provider.OpentelemetryMeterOptions{

	AgentHost:     "",
	AgentPort:     4317,
	Prefix:        "",
	CollectPeriod: 1000,
}

var newrelicOptions = provider.NewRelicOptions{

	ServiceName: "greeter",
	Environment: "none",
	Attributes:  "",
}

var newrelicMeterOptions = provider.NewRelicMeterOptions{

	Endpoint: "",
	Prefix:   "",
}

func startMeters(registry *telemetry.Registry) {

	registryMeter := provider.NewRegistryMeter(registryOptions, registry, logs, stdout)
	metrics.Register(registryMeter)

	if common.HasElem(rootOptions.Metrics, "victoria") {
		victoriaOptions.Version = VERSION
		victoria := provider.NewVictoriaMeter(victoriaOptions, logs, stdout)
		if victoria != nil {
			if victoriaOptions.Listen != "" {
				victoria.StartInWaitGroup(&mainWG)
			}
			metrics.Register(victoria)
		}
	}

	if common.HasElem(rootOptions.Metrics, "prometheus") {
		prometheusOptions.Version = VERSION
		prometheus := provider.NewPrometheusMeter(prometheusOptions, logs, stdout)
		if prometheus != nil {
			if prometheusOptions.Listen != "" {
				prometheus.StartInWaitGroup(&mainWG)
			}
			metrics.Register(prometheus)
		}
	}

	if common.HasElem(rootOptions.Metrics, "datadog") {
		datadogMeterOptions.DataDogOptions = datadogOptions
		datadogMeterOptions.Version = VERSION
		datadog := provider.NewDataDogMeter(datadogMeterOptions, logs, stdout)
		if datadog != nil {
			metrics.Register(datadog)
		}
	}

	if common.HasElem(rootOptions.Metrics, "opentelemetry") {
		opentelemetryMeterOptions.OpentelemetryOptions = opentelemetryOptions
		opentelemetryMeterOptions.Version = VERSION
		opentelemetry := provider.NewOpentelemetryMeter(opentelemetryMeterOptions, logs, stdout)
		if opentelemetry != nil {
			metrics.Register(opentelemetry)
		}
	}

	if common.HasElem(rootOptions.Metrics, "newrelic") {
		newrelicMeterOptions.NewRelicOptions = newrelicOptions
		newrelicMeterOptions.Version = VERSION
		newrelic := provider.NewNewRelicMeter(newrelicMeterOptions, logs, stdout)
		if newrelic != nil {
			metrics.Register(newrelic)
		}
	}
}

func run(ctx context.Context) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := telemetry.NewRegistry()
	startMeters(registry)

	recorder, err := greeter.NewRecorder(metrics, greeter.RecorderOptions{})
	if err != nil {
		metrics.Stop()
		mainWG.Wait()
		return err
	}

	exp := exporter.NewExporter(registry, nil, exporterOptions, logs, stdout)
	exp.Start(ctx, &mainWG)

	endpoint := exporter.NewHTTPServer(exporterHTTPOptions, exp, logs, stdout)
	if endpoint != nil {
		endpoint.StartInWaitGroup(&mainWG)
	}

	server := greeter.NewServer(greeterOptions, recorder, logs, stdout)

	mainWG.Add(1)
	go func() {

		defer mainWG.Done()
		if !server.Start() {
			cancel()
		}
	}()

	<-ctx.Done()
	logs.Info("Exiting...")

	server.Stop()
	if endpoint != nil {
		endpoint.Stop()
	}
	metrics.Stop()

	mainWG.Wait()
	return nil
}

func Execute() {

	rootCmd := &cobra.Command{
		Use:   "greeter",
		Short: "Greeter",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {

			stdoutOptions.Version = VERSION
			stdout = provider.NewStdout(stdoutOptions)
			stdout.SetCallerOffset(2)
			if common.HasElem(rootOptions.Logs, "stdout") {
				logs.Register(stdout)
			}

			logs.Info("Booting...")
		},
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			return run(ctx)
		},
	}

	flags := rootCmd.PersistentFlags()

	flags.StringSliceVar(&rootOptions.Logs, "logs", rootOptions.Logs, "Log providers: stdout")
	flags.StringSliceVar(&rootOptions.Metrics, "metrics", rootOptions.Metrics, "Metric providers mirrored next to the registry: victoria, prometheus, datadog, opentelemetry, newrelic")

	flags.StringVar(&stdoutOptions.Format, "stdout-format", stdoutOptions.Format, "Stdout format: json, text, template")
	flags.StringVar(&stdoutOptions.Level, "stdout-level", stdoutOptions.Level, "Stdout level: info, warn, error, debug, panic")
	flags.StringVar(&stdoutOptions.Template, "stdout-template", stdoutOptions.Template, "Stdout template")
	flags.StringVar(&stdoutOptions.TimestampFormat, "stdout-timestamp-format", stdoutOptions.TimestampFormat, "Stdout timestamp format")
	flags.BoolVar(&stdoutOptions.TextColors, "stdout-text-colors", stdoutOptions.TextColors, "Stdout text colors")
	flags.StringVar(&stdoutOptions.Output, "stdout-output", stdoutOptions.Output, "Stdout output: stdout, stderr")

	flags.StringVar(&greeterOptions.Listen, "greeter-listen", greeterOptions.Listen, "Greeter gRPC listen")

	flags.DurationVar(&exporterOptions.Interval, "exporter-interval", exporterOptions.Interval, "Exporter interval, counted from the end of the previous publish")
	flags.StringVar(&exporterOptions.Path, "exporter-path", exporterOptions.Path, "Exporter file path, - for stdout")
	flags.BoolVar(&exporterOptions.FlushOnStop, "exporter-flush-on-stop", exporterOptions.FlushOnStop, "Exporter publishes once more on shutdown")
	flags.BoolVar(&exporterOptions.Echo, "exporter-echo", exporterOptions.Echo, "Exporter logs published text at debug level")
	flags.StringVar(&exporterHTTPOptions.URL, "exporter-url", exporterHTTPOptions.URL, "Exporter endpoint url")
	flags.StringVar(&exporterHTTPOptions.Listen, "exporter-listen", exporterHTTPOptions.Listen, "Exporter endpoint listen, empty disables it")

	flags.StringVar(&registryOptions.Prefix, "registry-prefix", registryOptions.Prefix, "Registry metric prefix")

	flags.StringVar(&victoriaOptions.URL, "victoria-url", victoriaOptions.URL, "Victoria endpoint url")
	flags.StringVar(&victoriaOptions.Listen, "victoria-listen", victoriaOptions.Listen, "Victoria listen")
	flags.StringVar(&victoriaOptions.Prefix, "victoria-prefix", victoriaOptions.Prefix, "Victoria prefix")
	flags.BoolVar(&victoriaOptions.Process, "victoria-process", victoriaOptions.Process, "Victoria exposes process metrics")

	flags.StringVar(&prometheusOptions.URL, "prometheus-url", prometheusOptions.URL, "Prometheus endpoint url")
	flags.StringVar(&prometheusOptions.Listen, "prometheus-listen", prometheusOptions.Listen, "Prometheus listen")
	flags.StringVar(&prometheusOptions.Prefix, "prometheus-prefix", prometheusOptions.Prefix, "Prometheus prefix")
	flags.BoolVar(&prometheusOptions.Runtime, "prometheus-runtime", prometheusOptions.Runtime, "Prometheus exposes go and process collectors")

	flags.StringVar(&datadogOptions.ServiceName, "datadog-service-name", datadogOptions.ServiceName, "DataDog service name")
	flags.StringVar(&datadogOptions.Environment, "datadog-environment", datadogOptions.Environment, "DataDog environment")
	flags.StringVar(&datadogOptions.Tags, "datadog-tags", datadogOptions.Tags, "DataDog tags, comma separated list of name=value")
	flags.StringVar(&datadogMeterOptions.AgentHost, "datadog-meter-host", datadogMeterOptions.AgentHost, "DataDog meter agent host")
	flags.IntVar(&datadogMeterOptions.AgentPort, "datadog-meter-port", datadogMeterOptions.AgentPort, "DataDog meter agent port")
	flags.StringVar(&datadogMeterOptions.Prefix, "datadog-meter-prefix", datadogMeterOptions.Prefix, "DataDog meter prefix")

	flags.StringVar(&opentelemetryOptions.ServiceName, "opentelemetry-service-name", opentelemetryOptions.ServiceName, "Opentelemetry service name")
	flags.StringVar(&opentelemetryOptions.Environment, "opentelemetry-environment", opentelemetryOptions.Environment, "Opentelemetry environment")
	flags.StringVar(&opentelemetryOptions.Attributes, "opentelemetry-attributes", opentelemetryOptions.Attributes, "Opentelemetry attributes, comma separated list of name=value")
	flags.StringVar(&opentelemetryMeterOptions.AgentHost, "opentelemetry-meter-host", opentelemetryMeterOptions.AgentHost, "Opentelemetry meter collector host")
	flags.IntVar(&opentelemetryMeterOptions.AgentPort, "opentelemetry-meter-port", opentelemetryMeterOptions.AgentPort, "Opentelemetry meter collector port")
	flags.StringVar(&opentelemetryMeterOptions.Prefix, "opentelemetry-meter-prefix", opentelemetryMeterOptions.Prefix, "Opentelemetry meter prefix")
	flags.Int64Var(&opentelemetryMeterOptions.CollectPeriod, "opentelemetry-meter-collect-period", opentelemetryMeterOptions.CollectPeriod, "Opentelemetry meter collect period in milliseconds")

	flags.StringVar(&newrelicOptions.ApiKey, "newrelic-api-key", newrelicOptions.ApiKey, "NewRelic API key")
	flags.StringVar(&newrelicOptions.ServiceName, "newrelic-service-name", newrelicOptions.ServiceName, "NewRelic service name")
	flags.StringVar(&newrelicOptions.Environment, "newrelic-environment", newrelicOptions.Environment, "NewRelic environment")
	flags.StringVar(&newrelicOptions.Attributes, "newrelic-attributes", newrelicOptions.Attributes, "NewRelic attributes, comma separated list of name=value")
	flags.BoolVar(&newrelicOptions.Debug, "newrelic-debug", newrelicOptions.Debug, "NewRelic debug")
	flags.StringVar(&newrelicMeterOptions.Endpoint, "newrelic-meter-endpoint", newrelicMeterOptions.Endpoint, "NewRelic meter endpoint")
	flags.StringVar(&newrelicMeterOptions.Prefix, "newrelic-meter-prefix", newrelicMeterOptions.Prefix, "NewRelic meter prefix")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(VERSION)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logs.Error(err)
		os.Exit(1)
	}
}
