// icupack cache
package cmd

import (
	"fmt"
	"os"

	"github.com/qobs-build/icupack/internal/builder"
	"github.com/qobs-build/icupack/internal/gitcache"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/spf13/cobra"
)

func cacheBase() string {
	base, err := gitcache.DefaultBase()
	if err != nil {
		msg.Fatal("could not locate the cache directory: %v", err)
	}
	return base
}

func doCacheSync() {
	cfg := loadConfig()
	raw, ok := builder.GitSource(cfg.Source.ConfigScripts)
	if !ok {
		msg.Warn("config_scripts %q is not a git source, nothing to cache", cfg.Source.ConfigScripts)
		return
	}
	url, branch := gitcache.ParseURL(raw)
	repo := gitcache.New(cacheBase(), url, branch)
	if err := repo.Sync(); err != nil {
		msg.Fatal("failed to sync %s: %v", url, err)
	}
	msg.Info("%s is up to date in %s", url, repo.Path())
}

func doCacheClean() {
	base := cacheBase()
	if err := os.RemoveAll(base); err != nil {
		msg.Fatal("failed to remove %s: %v", base, err)
	}
	msg.Info("removed %s", base)
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or update the git checkout of the config scripts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doCacheSync()
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached checkout",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doCacheClean()
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cacheBase())
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cached git checkouts",
}

func init() {
	// icupack cache subcommand
	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}
