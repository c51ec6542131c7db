// Package cli implements the archivectl command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/onkernel/archiveguard/cmd/archivectl/cli/config"
	archive "github.com/onkernel/archiveguard/lib/archive"
	archiveconfig "github.com/onkernel/archiveguard/lib/archive/config"
)

// cfgFile is the path to the config file (set via --config flag).
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "archivectl",
	Short: "Safely extract, create, list and verify TAR/ZIP/7z archives",
	Long: `archivectl wraps the archiveguard engine: extraction is guarded against
path traversal, symlink/hardlink escape and decompression bombs by
default, the same way a trusted extraction service would be run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().Bool("permissive", false, "Use the permissive preset (trusted input only)")
	rootCmd.PersistentFlags().String("max-file-size", "", "Maximum size of a single extracted file (e.g. 10MB)")
	rootCmd.PersistentFlags().String("max-total-size", "", "Maximum total extracted size (e.g. 1GB)")
	rootCmd.PersistentFlags().Int("max-file-count", 0, "Maximum number of entries")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 0, "Maximum uncompressed/compressed ratio")
	rootCmd.PersistentFlags().Bool("allow-symlinks", false, "Permit symlink entries whose target resolves inside the output directory")
	rootCmd.PersistentFlags().Bool("allow-hardlinks", false, "Permit hardlink entries whose target was already extracted")

	for _, name := range []string{
		"verbose", "permissive", "max-file-size", "max-total-size",
		"max-file-count", "max-compression-ratio", "allow-symlinks", "allow-hardlinks",
	} {
		//nolint:errcheck // flags are defined above, Lookup never returns nil here
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(extractCmd, createCmd, listCmd, verifyCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.Dir()
		if err == nil {
			viper.AddConfigPath(configDir)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ARCHIVECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config:", viper.ConfigFileUsed())
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// securityConfigFromFlags builds a SecurityConfig from the bound persistent
// flags/config/env, starting from the deny-all preset unless --permissive
// was given.
func securityConfigFromFlags() (*archiveconfig.SecurityConfig, error) {
	cfg := archiveconfig.Default()
	if viper.GetBool("permissive") {
		cfg = archiveconfig.Permissive()
	}

	if raw := viper.GetString("max-file-size"); raw != "" {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("parse max-file-size: %w", err)
		}
		cfg.MaxFileSize = sz
	}
	if raw := viper.GetString("max-total-size"); raw != "" {
		var sz datasize.ByteSize
		if err := sz.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("parse max-total-size: %w", err)
		}
		cfg.MaxTotalSize = sz
	}
	if n := viper.GetInt("max-file-count"); n > 0 {
		cfg.MaxFileCount = n
	}
	if r := viper.GetFloat64("max-compression-ratio"); r > 0 {
		cfg.MaxCompressionRatio = r
	}
	if viper.IsSet("allow-symlinks") {
		cfg.AllowSymlinks = viper.GetBool("allow-symlinks")
	}
	if viper.IsSet("allow-hardlinks") {
		cfg.AllowHardlinks = viper.GetBool("allow-hardlinks")
	}

	return cfg, nil
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context canceled on SIGINT/SIGTERM, and a channel
// closed at the same moment for Extract's cooperative-cancellation Abort.
func signalContext() (context.Context, <-chan struct{}, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	abort := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			close(abort)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, abort, cancel
}

// formatError converts archive engine errors into user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, archive.ErrPathTraversal):
		return fmt.Sprintf("Error: path traversal detected (security violation): %v", err)
	case errors.Is(err, archive.ErrSymlinkEscape):
		return fmt.Sprintf("Error: symlink escape detected (security violation): %v", err)
	case errors.Is(err, archive.ErrHardlinkEscape):
		return fmt.Sprintf("Error: hardlink escape detected (security violation): %v", err)
	case errors.Is(err, archive.ErrZipBomb):
		return fmt.Sprintf("Error: compression ratio exceeded (possible decompression bomb): %v", err)
	case errors.Is(err, archive.ErrQuotaExceeded):
		return fmt.Sprintf("Error: extraction quota exceeded: %v", err)
	case errors.Is(err, archive.ErrEncryptedArchive):
		return "Error: archive contains encrypted entries, which are not supported"
	case errors.Is(err, archive.ErrUnsupportedFormat):
		return fmt.Sprintf("Error: unsupported archive format: %v", err)
	case errors.Is(err, archive.ErrInvalidArchive):
		return fmt.Sprintf("Error: invalid or corrupt archive: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
