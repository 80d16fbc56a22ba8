// pagedb is a small command-line front end for package pagedb, useful for
// poking at a store from a shell: get/put/del a single key, scan a prefix,
// force a flush, or print storage stats.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Ezkerrox/pagedb/dbconfig"
	"github.com/Ezkerrox/pagedb/log"
	"github.com/Ezkerrox/pagedb/pagedb"
)

var (
	app *cli.App

	pathFlag = &cli.StringFlag{
		Name:     "path",
		Usage:    "storage directory",
		Required: true,
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML config file overriding defaults",
	}
)

func init() {
	app = cli.NewApp()
	app.Name = "pagedb"
	app.Usage = "inspect and drive a pagedb store from the command line"
	app.Flags = []cli.Flag{pathFlag, configFlag}
	app.Commands = []*cli.Command{
		getCommand,
		putCommand,
		delCommand,
		scanCommand,
		flushCommand,
		statsCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Crit("pagedb command failed", "err", err)
	}
}

func openTree(c *cli.Context) (*pagedb.Tree, error) {
	cfg := dbconfig.Default()
	if p := c.String(configFlag.Name); p != "" {
		loaded, err := dbconfig.Load(p)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Path = c.String(pathFlag.Name)
	return pagedb.Open(cfg)
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "print the value stored for a key",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("get requires exactly one argument", 1)
		}
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		value, err := t.Get(context.Background(), []byte(c.Args().Get(0)))
		if err != nil {
			return err
		}
		if value == nil {
			return cli.Exit("key not found", 1)
		}
		fmt.Println(string(value))
		return nil
	},
}

var putCommand = &cli.Command{
	Name:      "put",
	Usage:     "insert or overwrite a key",
	ArgsUsage: "<key> <value>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("put requires exactly two arguments", 1)
		}
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		_, err = t.Insert(context.Background(), []byte(c.Args().Get(0)), []byte(c.Args().Get(1)))
		return err
	},
}

var delCommand = &cli.Command{
	Name:      "del",
	Usage:     "remove a key",
	ArgsUsage: "<key>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("del requires exactly one argument", 1)
		}
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		_, err = t.Remove(context.Background(), []byte(c.Args().Get(0)))
		return err
	},
}

var scanCommand = &cli.Command{
	Name:      "scan",
	Usage:     "print every key/value pair carrying a prefix",
	ArgsUsage: "<prefix>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("scan requires exactly one argument", 1)
		}
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		ctx := context.Background()
		it := t.ScanPrefix(ctx, []byte(c.Args().Get(0)))
		for {
			e, ok, err := it.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			fmt.Printf("%s\t%s\n", e.Key, e.Value)
		}
	},
}

var flushCommand = &cli.Command{
	Name:  "flush",
	Usage: "force every dirty leaf to be written durably",
	Action: func(c *cli.Context) error {
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		n, err := t.Flush(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("flushed %d leaves\n", n)
		return nil
	},
}

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "print storage backend and dirty-set counters",
	Action: func(c *cli.Context) error {
		t, err := openTree(c)
		if err != nil {
			return err
		}
		defer t.Close()
		st, err := t.StorageStats()
		if err != nil {
			return err
		}
		fmt.Printf("backend=%s live_bytes=%d live_count=%d free_count=%d dirty=%d recovered=%v\n",
			st.Backend, st.LiveBytes, st.LiveCount, st.FreeCount, st.DirtyCount, t.WasRecovered())
		return nil
	},
}
