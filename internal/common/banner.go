package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config, logger *Logger) {
	version := Version
	build := Build

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 64
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` 888               888                                                       `,
		` 888               888                                                       `,
		` 888 .d88b.  .d88888 .d88b.  .d88b. 888d888.d8888b 888  888 88888b.  .d8888b`,
		` 888d8P  Y8bd88" 888d88P"88bd8P  Y8b888P"  88K     888  888 888 "88bd88P"   `,
		` 88888888888888  888888  88888888888888    "Y8888b.888  888 888  888888     `,
		` 888Y8b.    Y88b 888Y88b 888Y8b.    888         X88Y88b 888 888  888Y88b.   `,
		` 888 "Y8888  "Y88888 "Y88888 "Y8888 888     88888P' "Y88888 888  888 "Y8888P`,
		`                         888                             888                 `,
		`                    Y8b d88P                        Y8b d88P                 `,
		`                     "Y88P"                          "Y88P"                  `,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  Bank Ledger Replication & Balance History%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	kvPad := 14
	kvLines := [][2]string{
		{"Version", version},
		{"Build", build},
		{"Commit", Commit},
		{"Environment", config.Environment},
		{"Database", config.Storage.DatabasePath},
		{"Exports", config.Storage.ExportPath},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("commit", Commit).
		Str("environment", config.Environment).
		Str("database", config.Storage.DatabasePath).
		Msg("Application started")
}
