package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/AcalephStorage/etcdv2/util"
)

const Version = "0.1.0"

var mainLog = util.NewContextLogger("main")

func main() {
	setLogLevel()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "etcdv2"
	app.Usage = "read and write keys of an etcd v2 cluster"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "conf, c",
			Usage: "Specify a yaml configuration file",
		},
		cli.StringSliceFlag{
			Name:  "endpoint, e",
			Usage: "member URL, overrides the endpoints of the configuration (repeatable)",
		},
		cli.BoolFlag{
			Name:  "no-discover",
			Usage: "use the endpoints as given instead of asking the cluster for its members",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "get",
			Usage:     "print the value of a key",
			ArgsUsage: "<key>",
			Before:    requireArgs(1),
			Action:    getKey,
		},
		{
			Name:      "set",
			Usage:     "set the value of a key",
			ArgsUsage: "<key> <value>",
			Before:    requireArgs(2),
			Flags:     []cli.Flag{ttlFlag},
			Action:    setKey,
		},
		{
			Name:      "mk",
			Usage:     "create a key, failing if it exists",
			ArgsUsage: "<key> <value>",
			Before:    requireArgs(2),
			Flags:     []cli.Flag{ttlFlag},
			Action:    makeKey,
		},
		{
			Name:      "update",
			Usage:     "update an existing key",
			ArgsUsage: "<key> <value>",
			Before:    requireArgs(2),
			Flags: []cli.Flag{
				ttlFlag,
				cli.StringFlag{
					Name:  "swap-with-value",
					Usage: "only update if the current value matches",
				},
				cli.IntFlag{
					Name:  "swap-with-index",
					Usage: "only update if the current modified index matches",
				},
			},
			Action: updateKey,
		},
		{
			Name:      "rm",
			Usage:     "remove a key",
			ArgsUsage: "<key>",
			Before:    requireArgs(1),
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "with-value",
					Usage: "only remove if the current value matches",
				},
				cli.IntFlag{
					Name:  "with-index",
					Usage: "only remove if the current modified index matches",
				},
			},
			Action: removeKey,
		},
		{
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "<dir>",
			Before:    requireArgs(1),
			Flags:     []cli.Flag{ttlFlag},
			Action:    makeDir,
		},
		{
			Name:      "rmdir",
			Usage:     "remove a directory",
			ArgsUsage: "<dir>",
			Before:    requireArgs(1),
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "recursive, r",
					Usage: "remove the directory and everything below it",
				},
			},
			Action: removeDir,
		},
		{
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[dir]",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "recursive, r",
					Usage: "include the entries of sub directories",
				},
			},
			Action: listDir,
		},
		{
			Name:      "watch",
			Usage:     "wait for a change of a key",
			ArgsUsage: "<key>",
			Before:    requireArgs(1),
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "recursive, r",
					Usage: "watch everything below the key",
				},
				cli.BoolFlag{
					Name:  "forever, f",
					Usage: "keep watching after the first change",
				},
				cli.IntFlag{
					Name:  "after-index",
					Usage: "report changes from this index on",
				},
			},
			Action: watchKey,
		},
		{
			Name:      "doc",
			Usage:     "print a directory as a nested document",
			ArgsUsage: "<dir>",
			Before:    requireArgs(1),
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "yaml",
					Usage: "print yaml instead of json",
				},
			},
			Action: printDocument,
		},
		{
			Name:      "shell",
			Usage:     "browse the keyspace interactively",
			ArgsUsage: "[dir]",
			Action:    runShell,
		},
		{
			Name:   "members",
			Usage:  "list the cluster members",
			Action: listMembers,
		},
		{
			Name:      "stats",
			Usage:     "print server statistics",
			ArgsUsage: "<self|store|leader>",
			Before:    requireArgs(1),
			Action:    printStats,
		},
		{
			Name:   "health",
			Usage:  "check every member",
			Action: checkHealth,
		},
		{
			Name:   "server-version",
			Usage:  "print the version of the active member",
			Action: serverVersion,
		},
	}
	return app
}

var ttlFlag = cli.IntFlag{
	Name:  "ttl",
	Usage: "time to live of the key in seconds",
}

func requireArgs(n int) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if c.NArg() < n {
			return fmt.Errorf("%s requires %d argument(s): %s", c.Command.Name, n, c.Command.ArgsUsage)
		}
		return nil
	}
}

func setLogLevel() {
	util.SetDebug(getEnv("DEBUG", "false") == "true")
}

func getEnv(key, defaultStr string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultStr
	}
	mainLog.InFunc("getEnv").Debugf("Parameter: %s=%s", key, value)
	return value
}
