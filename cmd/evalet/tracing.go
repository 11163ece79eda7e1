package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jingkaihe/evalet/pkg/telemetry"
	"github.com/jingkaihe/evalet/pkg/version"
)

var tracer = telemetry.Tracer("evalet.cli")

// sensitiveFlags never become span attributes.
var sensitiveFlags = map[string]bool{
	"args": true,
}

func initTracing(ctx context.Context) (func(context.Context) error, error) {
	return telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    "evalet",
		ServiceVersion: version.Get().Version,
		SamplerType:    viper.GetString("tracing.sampler"),
		SamplerRatio:   viper.GetFloat64("tracing.ratio"),
	})
}

// withTracing wraps a command's Run so execution happens inside a span named
// after the command, carrying its non-sensitive flag values.
func withTracing(cmd *cobra.Command) *cobra.Command {
	originalRun := cmd.Run

	cmd.Run = func(cmd *cobra.Command, args []string) {
		ctx, span := tracer.Start(cmd.Context(), "cli."+cmd.Name(),
			trace.WithAttributes(commandAttributes(cmd, args)...))
		defer span.End()

		cmd.SetContext(ctx)
		originalRun(cmd, args)

		span.SetStatus(codes.Ok, "")
	}

	return cmd
}

func commandAttributes(cmd *cobra.Command, args []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("command.path", cmd.CommandPath()),
		attribute.Int("args.count", len(args)),
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		if sensitiveFlags[flag.Name] {
			return
		}
		attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
	})
	return attrs
}

func init() {
	rootCmd.PersistentFlags().Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	rootCmd.PersistentFlags().String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	rootCmd.PersistentFlags().Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	viper.BindPFlag("tracing.enabled", rootCmd.PersistentFlags().Lookup("tracing-enabled"))
	viper.BindPFlag("tracing.sampler", rootCmd.PersistentFlags().Lookup("tracing-sampler"))
	viper.BindPFlag("tracing.ratio", rootCmd.PersistentFlags().Lookup("tracing-ratio"))
}
