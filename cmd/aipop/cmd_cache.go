package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"aipop/internal/cache"
	"aipop/internal/version"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the attack cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attack cache counts by version and method",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.NewAttackCache(cfg.Cache.AttackDB)
		if err != nil {
			return err
		}
		stats, err := c.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("%d entries in %s\n", stats.Total, cfg.Cache.AttackDB)
		printCounts("version", stats.ByVersion)
		printCounts("method", stats.ByMethod)

		results, err := cache.NewResultStore(cfg.Cache.ResponseDB)
		if err != nil {
			return err
		}
		counts, err := results.StatusCounts("")
		if err != nil {
			return err
		}
		if len(counts) > 0 {
			fmt.Printf("recorded verification results in %s\n", cfg.Cache.ResponseDB)
			printCounts("status", counts)
		}
		return nil
	},
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Drop expired entries and entries from other core versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.NewAttackCache(cfg.Cache.AttackDB)
		if err != nil {
			return err
		}
		attackDropped, err := c.GC()
		if err != nil {
			return err
		}
		responses, err := cache.NewResponseCache(cfg.Cache.ResponseDB)
		if err != nil {
			return err
		}
		responseDropped, err := responses.GC()
		if err != nil {
			return err
		}
		fmt.Printf("dropped %d attack entries, %d response entries\n", attackDropped, responseDropped)
		return nil
	},
}

var cacheClearVersion string

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all entries for one core version",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cache.NewAttackCache(cfg.Cache.AttackDB)
		if err != nil {
			return err
		}
		v := cacheClearVersion
		if v == "" {
			v = version.Core
		}
		dropped, err := c.ClearByVersion(v)
		if err != nil {
			return err
		}
		fmt.Printf("dropped %d entries for version %s\n", dropped, v)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearVersion, "version", "", "core version to clear (default current)")
	cacheCmd.AddCommand(cacheStatsCmd, cacheGCCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func printCounts(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s %-12s %d\n", label, k, counts[k])
	}
}
