// Command fatbench drives a FAT32 volume directly through the fatvol
// engine: formatting a fresh image, and timing a batch of file creations
// followed by a sustained read/write pass, the way the teacher's own
// cmd/main.go wraps disko's driver with a small urfave/cli front end.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nilsrao/fatvol"
	"github.com/nilsrao/fatvol/volpreset"
)

func main() {
	app := cli.App{
		Name:  "fatbench",
		Usage: "Format and benchmark FAT32 volume images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Write a fresh FAT32 volume to a new image file",
				ArgsUsage: "IMAGE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "preset",
						Usage: "named volume geometry to format with",
						Value: "default_300mb",
					},
				},
				Action: formatImage,
			},
			{
				Name:      "bench",
				Usage:     "Create N files in ROOT\\BENCH, then read/write RW_MB megabytes",
				ArgsUsage: "N RW_MB IMAGE_PATH",
				Action:    runBench,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func formatImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE_PATH", 1)
	}

	preset, err := volpreset.Lookup(c.String("preset"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := fatvol.Format(path, preset); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("formatted %s with preset %q (%d bytes)\n", path, preset.Slug, preset.TotalSizeBytes())
	return nil
}

func runBench(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("usage: fatbench bench N RW_MB IMAGE_PATH", 1)
	}
	n, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad N: %s", err), 1)
	}
	rwMB, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad RW_MB: %s", err), 1)
	}
	imagePath := c.Args().Get(2)

	engine, err := fatvol.Open(imagePath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer engine.Close()

	benchDir, err := engine.CreateObject("BENCH", true)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := engine.Put("", benchDir); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	createStart := time.Now()
	var firstFileName string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("F%05d.BIN", i)
		if i == 0 {
			firstFileName = name
		}
		content, err := engine.CreateObject(name, false)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if err := engine.Put("BENCH", content); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}
	createElapsed := time.Since(createStart)
	fmt.Printf("created %d files in %s (%.1f files/sec)\n",
		n, createElapsed, float64(n)/createElapsed.Seconds())

	handleID, err := engine.OpenPath("BENCH\\" + firstFileName)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer engine.CloseHandle(handleID)

	payload := make([]byte, rwMB*1024*1024)
	writeStart := time.Now()
	written, err := engine.Write(handleID, payload, 0)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	writeElapsed := time.Since(writeStart)
	fmt.Printf("wrote %d bytes in %s (%.2f MB/s)\n",
		written, writeElapsed, float64(rwMB)/writeElapsed.Seconds())

	readBuf := make([]byte, len(payload))
	readStart := time.Now()
	read, err := engine.Read(handleID, readBuf, 0)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	readElapsed := time.Since(readStart)
	fmt.Printf("read %d bytes in %s (%.2f MB/s)\n",
		read, readElapsed, float64(rwMB)/readElapsed.Seconds())

	if read != len(payload) {
		return cli.Exit(fmt.Sprintf("verify failed: read back %d of %d bytes", read, len(payload)), 1)
	}
	for i := range payload {
		if readBuf[i] != payload[i] {
			return cli.Exit(fmt.Sprintf("verify failed: mismatch at byte %d", i), 1)
		}
	}

	return nil
}
