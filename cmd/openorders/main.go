// Command openorders fetches the currently open orders for every configured
// account and prints one table block per account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/execwatch/execwatch/internal/config"
	"github.com/execwatch/execwatch/internal/talos"
)

const fetchTimeout = 60 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	compact := flag.Bool("compact", true, "render quantities as 1.25M style")
	abbrUsers := flag.Bool("abbr-users", true, "abbreviate user names to initials")
	maxRows := flag.Int("max-rows", 300, "row cap per account block")
	flag.Parse()

	logger := log.New(os.Stderr, "openorders ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if len(cfg.Accounts) == 0 {
		logger.Fatal("no accounts configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	opts := talos.TableOptions{
		MaxRows:         *maxRows,
		CompactNumbers:  *compact,
		AbbreviateUsers: *abbrUsers,
	}

	fmt.Println("Current working orders")
	for _, account := range cfg.Accounts {
		client := talos.NewOpenOrdersClient(talos.OpenOrdersConfig{
			Host:      account.Host,
			Path:      account.Path,
			APIKey:    account.APIKey,
			APISecret: account.APISecret,
			PageLimit: account.PageLimit,
		})
		orders, err := client.ListOpenOrders(ctx, talos.ListOptions{
			SubAccounts:  account.SubAccounts,
			ExcludeUsers: account.ExcludeUsers,
		})
		if err != nil {
			logger.Fatalf("fetch %s: %v", account.Label, err)
		}
		fmt.Println()
		fmt.Println(talos.FormatOrderTable(account.Label, orders, opts))
	}
}
