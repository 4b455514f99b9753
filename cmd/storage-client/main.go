package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/danielkbx/multi-storage/api/filehandler"
	"github.com/danielkbx/multi-storage/cmd/flags"
	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/urfave/cli/v2"
)

var flagName = &cli.StringFlag{
	Name:  "name",
	Usage: "object name, '%' is replaced with a random identifier (defaults to the file name)",
}
var flagPath = &cli.StringFlag{
	Name:  "path",
	Usage: "directory-like prefix of the object",
}
var flagEncoding = &cli.StringFlag{
	Name:  "encoding",
	Usage: "content encoding, e.g. binary, utf-8, base64 or hex",
}
var flagOut = &cli.StringFlag{
	Name:    "out",
	Aliases: []string{"o"},
	Usage:   "write content to this file instead of stdout",
}

const usage string = `Store, fetch and delete content on a storage server.

   storage-client put ./report.pdf --path reports
   storage-client get 's3://bucket/reports/report.pdf' -o report.pdf
   storage-client rm 'file:///var/lib/storage/reports/report.pdf'`

func main() {
	app := &cli.App{
		Name:  "storage-client",
		Usage: usage,
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
		},
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "upload a file, or stdin when no file or '-' is given",
				ArgsUsage: "[file]",
				Flags:     []cli.Flag{flagName, flagPath, flagEncoding},
				Action:    put,
			},
			{
				Name:      "get",
				Usage:     "download content by URL",
				ArgsUsage: "<url>",
				Flags:     []cli.Flag{flagEncoding, flagOut},
				Action:    get,
			},
			{
				Name:      "rm",
				Usage:     "delete content by URL",
				ArgsUsage: "<url>",
				Action:    rm,
			},
			{
				Name:   "providers",
				Usage:  "list the providers of the server",
				Action: providers,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func put(cCtx *cli.Context) error {
	opts := interfaces.WriteOptions{
		Name:     cCtx.String(flagName.Name),
		Path:     cCtx.String(flagPath.Name),
		Encoding: cCtx.String(flagEncoding.Name),
	}

	var body io.Reader = os.Stdin
	if file := cCtx.Args().First(); file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("could not open input: %w", err)
		}
		defer f.Close()
		body = f

		if opts.Name == "" {
			opts.Name = filepath.Base(file)
		}
	}

	result, err := filehandler.Upload(cCtx.Context, serverAddr(cCtx), body, opts)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func get(cCtx *cli.Context) error {
	contentURL, err := urlArg(cCtx)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out := cCtx.String(flagOut.Name); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("could not create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = filehandler.Download(cCtx.Context, serverAddr(cCtx), contentURL, cCtx.String(flagEncoding.Name), w)
	return err
}

func rm(cCtx *cli.Context) error {
	contentURL, err := urlArg(cCtx)
	if err != nil {
		return err
	}
	return filehandler.Remove(cCtx.Context, serverAddr(cCtx), contentURL)
}

func providers(cCtx *cli.Context) error {
	list, err := filehandler.ListProviders(cCtx.Context, serverAddr(cCtx))
	if err != nil {
		return err
	}
	return printJSON(list)
}

func serverAddr(cCtx *cli.Context) string {
	return cCtx.String(flags.ServerAddrFlag.Name)
}

func urlArg(cCtx *cli.Context) (string, error) {
	if cCtx.NArg() != 1 {
		return "", errors.New("expected exactly one content URL")
	}
	return cCtx.Args().First(), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
