package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/AcalephStorage/etcdv2/shell"
)

// stdin is where the shell command reads its lines from.
var stdin io.Reader = os.Stdin

func runShell(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}

	sh := shell.New(cl, c.Args().First())
	out := c.App.Writer
	scanner := bufio.NewScanner(stdin)

	fmt.Fprintf(out, "%s> ", sh.Cwd())
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "exit" || fields[0] == "quit" {
				return nil
			}
			lines, err := shellCommand(context.Background(), sh, fields[0], fields[1:])
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
		}
		fmt.Fprintf(out, "%s> ", sh.Cwd())
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func shellCommand(ctx context.Context, sh *shell.Context, name string, args []string) ([]string, error) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	one := func(s string, err error) ([]string, error) {
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}

	switch name {
	case "pwd":
		return []string{sh.Cwd()}, nil
	case "cd":
		return one(sh.Cd(ctx, arg(0)))
	case "ls":
		return sh.Ls(ctx, arg(0))
	case "get":
		return one(sh.Get(ctx, arg(0)))
	case "set":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: set <key> <value>")
		}
		return one(sh.Set(ctx, args[0], strings.Join(args[1:], " ")))
	case "mkdir":
		return one(sh.Mkdir(ctx, arg(0)))
	case "rm":
		return one(sh.Rm(ctx, arg(0)))
	case "help":
		return []string{"pwd, cd [dir], ls [dir], get <key>, set <key> <value>, mkdir <dir>, rm <key>, exit"}, nil
	}
	return nil, fmt.Errorf("unknown command %q, try help", name)
}
