/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Command pshell is the standalone interactive/batch client of spec §6.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RonIovine/pshell-sub000/client"
	"github.com/RonIovine/pshell-sub000/control"
	"github.com/RonIovine/pshell-sub000/lock"
	"github.com/RonIovine/pshell-sub000/transport/local"
)

var (
	flagServer  string // "-s" host:port or discovered/named server
	flagName    string // "-n" named server from config file
	flagCommand string // "-c" one-shot command
	flagFile    string // "-f" batch file path
	flagRate    int    // "rate=" repeat interval in seconds
	flagRepeat  int    // "repeat=" repeat count, 0 = forever
	flagTimeout int    // "-t<secs>"
)

func main() {
	root := &cobra.Command{
		Use:   "pshell",
		Short: "interactive/batch client for the pshell remote command shell",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagServer, "server", "s", "", "server address as host:port, or a discovered server name")
	root.Flags().StringVarP(&flagName, "name", "n", "", "server name resolved from the pshell config file")
	root.Flags().StringVarP(&flagCommand, "command", "c", "", "run a single command and exit")
	root.Flags().StringVarP(&flagFile, "file", "f", "", "run commands from a batch file and exit")
	root.Flags().IntVar(&flagRate, "rate", 0, "repeat interval in seconds for -c/-f")
	root.Flags().IntVar(&flagRepeat, "repeat", 1, "repeat count for -c/-f, 0 means forever")
	root.Flags().IntVarP(&flagTimeout, "timeout", "t", 5, "reply timeout in seconds")

	if err := root.Execute(); err != nil {
		os.Exit(int(client.ExitCommandFailed))
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()

	dir, err := lock.New("", log)
	if err != nil {
		return err
	}

	if flagServer == "" && flagName == "" {
		active, named, err := client.Discover(dir, "pshell.conf")
		if err != nil {
			return err
		}
		fmt.Println("Active servers:")
		for _, a := range active {
			fmt.Printf("  %s (%s)\n", a.Name, a.Kind)
		}
		fmt.Println("Named servers:")
		for _, n := range named {
			fmt.Printf("  %s -> %s:%d\n", n.Name, n.Host, n.Port)
		}
		return nil
	}

	ctl, err := control.New(dir, log)
	if err != nil {
		return err
	}
	defer ctl.DisconnectAll()

	host, port, err := resolveTarget(dir)
	if err != nil {
		return err
	}
	if err := ctl.ConnectUDP("target", host, port); err != nil {
		return err
	}

	c := client.New(ctl, "target", os.Stdout, os.Stderr)
	timeout := time.Duration(flagTimeout) * time.Second

	switch {
	case flagCommand != "":
		return repeatUntilDone(func() client.ExitCode { return c.RunOne(flagCommand, timeout) })
	case flagFile != "":
		return repeatUntilDone(func() client.ExitCode { return c.RunBatch(flagFile, timeout) })
	default:
		tty := local.New(os.Stdin, os.Stdout)
		c.Interactive(tty, "pshell> ", 0)
		return nil
	}
}

func resolveTarget(dir *lock.Dir) (string, int, error) {
	if flagServer != "" {
		parts := strings.SplitN(flagServer, ":", 2)
		if len(parts) == 2 {
			port, err := strconv.Atoi(parts[1])
			if err == nil {
				return parts[0], port, nil
			}
		}
	}
	_, named, err := client.Discover(dir, "pshell.conf")
	if err != nil {
		return "", 0, err
	}
	for _, n := range named {
		if n.Name == flagName || n.Name == flagServer {
			return n.Host, n.Port, nil
		}
	}
	return "", 0, fmt.Errorf("server %q not found", flagServer+flagName)
}

func repeatUntilDone(fn func() client.ExitCode) error {
	count := 0
	for {
		code := fn()
		if code != client.ExitOK {
			os.Exit(int(code))
		}
		count++
		if flagRepeat != 0 && count >= flagRepeat {
			return nil
		}
		if flagRate > 0 {
			time.Sleep(time.Duration(flagRate) * time.Second)
		}
	}
}
